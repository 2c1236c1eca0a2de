package buildinfo

import "runtime"

// Set via -ldflags "-X shipnorth/internal/buildinfo.Version=..."
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "service":   "route-editor",
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}
