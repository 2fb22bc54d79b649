// Package config loads the ragline configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional TOML file and the process environment. A .env file in the
// working directory (or the files passed to Load) is read into the
// environment first, without overriding variables that are already set.
package config
