package artifacts

import _ "embed"

// Global artifacts

// GlobalSettings is the default settings.yaml. It is both the template
// written by `c4ghfs init` and the source of built-in defaults.
//
//go:embed global/settings.yaml
var GlobalSettings []byte

// ExampleConf is a crypt4ghfs-style INI configuration
//
//go:embed global/crypt4ghfs.conf
var ExampleConf []byte
