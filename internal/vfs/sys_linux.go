//go:build linux

package vfs

import "golang.org/x/sys/unix"

// pathOpenFlags opens a descriptor usable for *at calls and reopening but
// not for I/O, without following a trailing symlink.
const pathOpenFlags = unix.O_PATH | unix.O_NOFOLLOW | unix.O_CLOEXEC

func rawStatFromUnix(st *unix.Stat_t) RawStat {
	return RawStat{
		Ino:     st.Ino,
		Nlink:   uint64(st.Nlink),
		Mode:    st.Mode,
		Uid:     st.Uid,
		Gid:     st.Gid,
		Rdev:    uint64(st.Rdev),
		Size:    st.Size,
		AtimeNs: st.Atim.Nano(),
		MtimeNs: st.Mtim.Nano(),
		CtimeNs: st.Ctim.Nano(),
	}
}
