package version

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Version returns the current version.
func Version() string {
	return version
}

// Commit returns the current commit.
func Commit() string {
	return commit
}

// BuildDate returns the build date.
func BuildDate() string {
	return date
}

// ModuleName returns the module name.
func ModuleName() string {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		return buildInfo.Main.Path
	}
	return ""
}

// Log logs the version information.
func Log() {
	log.Info().
		Str("date", date).
		Str("version", version).
		Str("commit", commit).
		Str("module", ModuleName()).Send()
}

// Print writes the version information on the given writer.
func Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "version:\t%s\ncommit:\t\t%s\nbuild date:\t%s\n", version, commit, date)
	return err
}
