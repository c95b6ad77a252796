// Package player launches playback URLs in an external media player.
//
// The launcher works in three tiers: a player the user configured, then a
// per-platform candidate chain of known players, then the operating
// system's default URL handler.
package player

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Launcher opens stream URLs in an external player.
type Launcher struct {
	command    string   // configured player command, empty for auto-detection
	args       []string // extra arguments passed before the URL
	offsetFlag string   // resume offset flag, e.g. "--start=" or "-ss "
	logger     *slog.Logger
}

// launchSpec is one way to start a player on a platform.
type launchSpec struct {
	command   string   // binary name, or "open-a:App" for macOS app bundles
	openFlags []string // extra flags for the macOS open command
}

// knownPlayer holds the launch configuration for one supported player.
type knownPlayer struct {
	offsetFlag string
	platforms  map[string][]launchSpec
}

// players is the registry of supported players and their platform quirks.
var players = map[string]knownPlayer{
	"mpv": {
		offsetFlag: "--start=",
		platforms: map[string][]launchSpec{
			"darwin":  {{command: "mpv"}},
			"linux":   {{command: "mpv"}},
			"windows": {{command: "mpv"}},
		},
	},
	"vlc": {
		offsetFlag: "--start-time=",
		platforms: map[string][]launchSpec{
			"darwin": {
				{command: "vlc"},
				{command: "open-a:VLC"},
			},
			"linux":   {{command: "vlc"}},
			"windows": {{command: "vlc"}},
		},
	},
	"iina": {
		offsetFlag: "--mpv-start=",
		platforms: map[string][]launchSpec{
			// IINA reuses the running window without -n.
			"darwin": {{command: "open-a:IINA", openFlags: []string{"-n"}}},
		},
	},
	"celluloid": {
		offsetFlag: "--mpv-start=",
		platforms: map[string][]launchSpec{
			"linux": {{command: "celluloid"}},
		},
	},
	"haruna": {
		offsetFlag: "--mpv-start=",
		platforms: map[string][]launchSpec{
			"linux": {{command: "haruna"}},
		},
	},
	"potplayer": {
		offsetFlag: "/seek=",
		platforms: map[string][]launchSpec{
			"windows": {{command: "PotPlayerMini64.exe"}, {command: "PotPlayerMini.exe"}},
		},
	},
}

// candidateOrder is the detection order per platform.
var candidateOrder = map[string][]string{
	"darwin":  {"iina", "vlc", "mpv"},
	"linux":   {"mpv", "celluloid", "haruna", "vlc"},
	"windows": {"vlc", "mpv", "potplayer"},
}

// New builds a Launcher. When command names a known player and offsetFlag
// is empty, the flag is filled in from the registry so resume offsets
// work without extra configuration.
func New(command string, args []string, offsetFlag string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}

	if offsetFlag == "" && command != "" {
		if flag := detectOffsetFlag(command); flag != "" {
			offsetFlag = flag
			logger.Debug("detected player offset flag", "command", command, "flag", flag)
		}
	}

	return &Launcher{
		command:    command,
		args:       args,
		offsetFlag: offsetFlag,
		logger:     logger,
	}
}

// detectOffsetFlag resolves the resume flag for a configured command by
// its base name, so "/usr/local/bin/mpv" and "vlc.exe" both match. Binary
// names that differ from the player name, like PotPlayerMini64.exe, are
// matched against the registry's launch specs.
func detectOffsetFlag(command string) string {
	base := filepath.Base(command)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)

	if p, ok := players[base]; ok {
		return p.offsetFlag
	}
	for _, p := range players {
		for _, specs := range p.platforms {
			for _, spec := range specs {
				cmd := strings.TrimSuffix(spec.command, filepath.Ext(spec.command))
				if strings.EqualFold(cmd, base) {
					return p.offsetFlag
				}
			}
		}
	}
	return ""
}

// offsetArgs renders the resume offset into player arguments. Flags with
// a trailing space become two arguments ("-ss", "120"); flags ending in
// "=" or other characters get the value appended ("--start=120").
func offsetArgs(flag string, offset time.Duration) []string {
	if offset <= 0 || flag == "" {
		return nil
	}
	seconds := fmt.Sprintf("%.0f", offset.Seconds())
	if strings.HasSuffix(flag, " ") {
		return []string{strings.TrimSuffix(flag, " "), seconds}
	}
	return []string{flag + seconds}
}

// openArgs builds the argv for the macOS open command: open [flags] -a App
// [--args playerArgs...] url.
func openArgs(app string, flags, playerArgs []string, url string) []string {
	argv := append([]string{}, flags...)
	argv = append(argv, "-a", app)
	if len(playerArgs) > 0 {
		argv = append(argv, "--args")
		argv = append(argv, playerArgs...)
	}
	return append(argv, url)
}

// Launch opens the URL, seeking to offset when the player supports it.
func (l *Launcher) Launch(url string, offset time.Duration) error {
	if l.command != "" {
		return l.launchConfigured(url, offset)
	}

	if name, err := l.launchDetected(url, offset); err == nil {
		l.logger.Info("launched detected player", "player", name)
		return nil
	}

	l.logger.Info("no known player found, using system default")
	return l.launchDefault(url)
}

// launchConfigured starts the user's configured player.
func (l *Launcher) launchConfigured(url string, offset time.Duration) error {
	args := append([]string{}, l.args...)

	if offset > 0 {
		if extra := offsetArgs(l.offsetFlag, offset); extra != nil {
			args = append(args, extra...)
		} else {
			l.logger.Warn("player has no known offset flag, starting from the beginning",
				"command", l.command, "offset", offset)
		}
	}

	l.logger.Info("launching configured player", "command", l.command, "url", url)

	// GUI apps on macOS often aren't on PATH; fall back to open -a.
	if runtime.GOOS == "darwin" {
		if _, err := exec.LookPath(l.command); err != nil {
			return exec.Command("open", openArgs(l.command, l.appOpenFlags(), args, url)...).Start()
		}
	}

	args = append(args, url)
	return exec.Command(l.command, args...).Start()
}

// appOpenFlags looks up the open-command flags registered for the
// configured player's macOS app bundle.
func (l *Launcher) appOpenFlags() []string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(l.command), filepath.Ext(l.command)))
	p, ok := players[base]
	if !ok {
		return nil
	}
	for _, spec := range p.platforms["darwin"] {
		if strings.HasPrefix(spec.command, "open-a:") {
			return spec.openFlags
		}
	}
	return nil
}

// launchDetected walks the platform's candidate chain and starts the
// first player that launches. Returns the player's name.
func (l *Launcher) launchDetected(url string, offset time.Duration) (string, error) {
	candidates, ok := candidateOrder[runtime.GOOS]
	if !ok {
		candidates = candidateOrder["linux"]
	}

	for _, name := range candidates {
		p := players[name]
		specs, ok := p.platforms[runtime.GOOS]
		if !ok {
			continue
		}

		extra := offsetArgs(p.offsetFlag, offset)

		for _, spec := range specs {
			var err error
			if app, isApp := strings.CutPrefix(spec.command, "open-a:"); isApp {
				// open returns an error when the app isn't installed.
				err = exec.Command("open", openArgs(app, spec.openFlags, extra, url)...).Run()
			} else {
				err = startCommand(spec.command, extra, url)
			}
			if err == nil {
				return name, nil
			}
			l.logger.Debug("player not available", "player", name, "command", spec.command, "error", err)
		}
	}

	return "", fmt.Errorf("no known player available")
}

// startCommand starts command with the URL appended, without waiting.
func startCommand(command string, args []string, url string) error {
	if _, err := exec.LookPath(command); err != nil {
		return err
	}
	return exec.Command(command, append(args, url)...).Start()
}

// launchDefault hands the URL to the operating system.
func (l *Launcher) launchDefault(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	l.logger.Info("launching system default handler", "os", runtime.GOOS)
	return cmd.Start()
}
