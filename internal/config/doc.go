// Package config provides the runtime options of capsule.
//
// Options come from three layers applied in order: built-in defaults
// (NewConfig), the YAML configuration file (File.Apply) and command line
// flags set by the cmd package. Directory locations follow the XDG Base
// Directory Specification.
package config
