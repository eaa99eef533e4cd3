//go:build darwin

package vfs

import "golang.org/x/sys/unix"

// Darwin has no O_PATH; a read-only descriptor serves as the path handle.
const pathOpenFlags = unix.O_RDONLY | unix.O_NOFOLLOW | unix.O_CLOEXEC

func rawStatFromUnix(st *unix.Stat_t) RawStat {
	return RawStat{
		Ino:     st.Ino,
		Nlink:   uint64(st.Nlink),
		Mode:    uint32(st.Mode),
		Uid:     st.Uid,
		Gid:     st.Gid,
		Rdev:    uint64(st.Rdev),
		Size:    st.Size,
		AtimeNs: st.Atimespec.Nano(),
		MtimeNs: st.Mtimespec.Nano(),
		CtimeNs: st.Ctimespec.Nano(),
	}
}
