package app

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Menu is the interactive prompt loop. It owns no state beyond its streams
// and the external-change flag: every iteration re-reads the configuration
// through the session.
type Menu struct {
	session        *Session
	in             *bufio.Scanner
	out            io.Writer
	logger         *zap.SugaredLogger
	externalChange atomic.Bool
}

// NewMenu creates a menu reading commands from in and rendering to out.
func NewMenu(session *Session, in io.Reader, out io.Writer, logger *zap.SugaredLogger) *Menu {
	return &Menu{
		session: session,
		in:      bufio.NewScanner(in),
		out:     out,
		logger:  logger,
	}
}

// Run executes the prompt loop until quit or EOF. While the loop waits for
// input, the session watches the config file; edits made by another program
// are announced before the next listing.
func (m *Menu) Run() error {
	if err := m.session.StartWatching(func() { m.externalChange.Store(true) }); err != nil {
		m.logger.Warnw("Config file watcher unavailable", "error", err)
	}

	for {
		if m.externalChange.Swap(false) {
			fmt.Fprintln(m.out, "\nnote: configuration file changed externally, reloading")
		}
		m.showServers()
		fmt.Fprint(m.out, "\n> ")

		if !m.in.Scan() {
			return m.in.Err()
		}
		line := strings.TrimSpace(m.in.Text())
		if line == "" {
			continue
		}

		cmd, arg := splitCommand(line)
		switch cmd {
		case "q", "quit", "exit":
			return nil
		case "t", "toggle":
			m.doToggle(arg)
		case "a", "enable-all":
			m.doEnableAll()
		case "s", "select":
			m.doSelect(arg)
		case "n", "normalize":
			m.report(m.session.Normalize())
		case "p", "preset":
			m.doPreset(arg)
		case "b", "backup":
			m.doBackup(arg)
		case "h", "history":
			m.doHistory()
		case "?", "help":
			m.showHelp()
		default:
			fmt.Fprintf(m.out, "unknown command %q (? for help)\n", cmd)
		}
	}
}

func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func (m *Menu) showServers() {
	infos, res, err := m.session.Servers()
	if err != nil {
		fmt.Fprintf(m.out, "\ncannot read configuration: %v\n", err)
		fmt.Fprintln(m.out, "use 'b list' / 'b restore <id>' to recover from a backup")
		return
	}

	fmt.Fprintln(m.out, "\nMCP servers:")
	if len(infos) == 0 {
		fmt.Fprintln(m.out, "  (none)")
	}
	for i, info := range infos {
		mark := " "
		if info.Enabled {
			mark = "x"
		}
		fmt.Fprintf(m.out, "  %2d. [%s] %s\n", i+1, mark, info.Name)
	}

	if res.Repaired {
		fmt.Fprintln(m.out, "note: configuration was repaired in memory; next save writes the repaired form")
	}
	for _, issue := range res.Issues {
		fmt.Fprintf(m.out, "structure issue: %s (run 'n' to normalize)\n", issue)
	}
}

func (m *Menu) showHelp() {
	fmt.Fprint(m.out, `
commands:
  t <name|#>        toggle a server between enabled and disabled
  a                 enable all servers
  s <all|r|list>    enable exactly a selection ('r' inverts, list is comma-separated names or numbers)
  n                 normalize missing/mistyped buckets
  p save <name>     save current config as a preset
  p load <name>     replace config with a preset
  p smart <name>    smart-merge a preset (repositions existing entries only)
  p list            list presets
  p delete <name>   delete a preset
  b list            list backups (newest first)
  b restore <id>    restore a backup ('latest' and 'pre-restore' are valid ids)
  b delete <id>     delete a backup
  b clear           delete all timestamped backups
  h                 show recent operations
  q                 quit
`)
}

func (m *Menu) doToggle(arg string) {
	if arg == "" {
		fmt.Fprintln(m.out, "usage: t <name|#>")
		return
	}
	name, ok := m.resolveName(arg)
	if !ok {
		return
	}
	if err := m.session.Toggle(name); err != nil {
		fmt.Fprintf(m.out, "toggle failed: %v\n", err)
		return
	}
	fmt.Fprintf(m.out, "toggled %q\n", name)
}

func (m *Menu) doEnableAll() {
	moved, err := m.session.EnableAll()
	if err != nil {
		fmt.Fprintf(m.out, "enable all failed: %v\n", err)
		return
	}
	fmt.Fprintf(m.out, "enabled %d server(s)\n", moved)
}

func (m *Menu) doSelect(arg string) {
	// A bare "s" must not be read as "select nothing": that would disable
	// every server.
	if strings.TrimSpace(arg) == "" {
		fmt.Fprintln(m.out, "usage: s <all|r|list>")
		return
	}

	infos, _, err := m.session.Servers()
	if err != nil {
		fmt.Fprintf(m.out, "cannot read configuration: %v\n", err)
		return
	}

	selected := resolveSelection(arg, infos)
	unknown, err := m.session.SelectExactly(selected)
	if err != nil {
		fmt.Fprintf(m.out, "select failed: %v\n", err)
		return
	}
	for _, name := range unknown {
		fmt.Fprintf(m.out, "warning: unknown server %q ignored\n", name)
	}
	fmt.Fprintf(m.out, "enabled exactly %d server(s)\n", len(selected)-len(unknown))
}

// resolveSelection turns the selection tokens into a concrete name set:
// "all" selects everything, "r" inverts the current enablement, anything else
// is a comma-separated list of names or 1-based display numbers.
func resolveSelection(arg string, infos []ServerInfo) []string {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "all":
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name)
		}
		return names
	case "r":
		var names []string
		for _, info := range infos {
			if !info.Enabled {
				names = append(names, info.Name)
			}
		}
		return names
	case "":
		return nil
	}

	var names []string
	for _, token := range strings.Split(arg, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if idx, err := strconv.Atoi(token); err == nil && idx >= 1 && idx <= len(infos) {
			names = append(names, infos[idx-1].Name)
			continue
		}
		names = append(names, token)
	}
	return names
}

// resolveName maps a display number to its server name, passing plain names
// through.
func (m *Menu) resolveName(arg string) (string, bool) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return arg, true
	}

	infos, _, lerr := m.session.Servers()
	if lerr != nil {
		fmt.Fprintf(m.out, "cannot read configuration: %v\n", lerr)
		return "", false
	}
	if idx < 1 || idx > len(infos) {
		fmt.Fprintf(m.out, "no server #%d\n", idx)
		return "", false
	}
	return infos[idx-1].Name, true
}

func (m *Menu) doPreset(arg string) {
	sub, name := splitCommand(arg)
	switch sub {
	case "save":
		m.requireName(name, "p save <name>", func() { m.report(m.session.SavePreset(name)) })
	case "load":
		m.requireName(name, "p load <name>", func() {
			_, err := m.session.LoadPreset(name, false)
			m.report(err)
		})
	case "smart":
		m.requireName(name, "p smart <name>", func() {
			discovered, err := m.session.LoadPreset(name, true)
			if err != nil {
				fmt.Fprintf(m.out, "error: %v\n", err)
				return
			}
			for _, n := range discovered {
				fmt.Fprintf(m.out, "new server %q not in preset, disabled\n", n)
			}
			fmt.Fprintln(m.out, "ok")
		})
	case "list":
		names, err := m.session.Presets()
		if err != nil {
			fmt.Fprintf(m.out, "error: %v\n", err)
			return
		}
		if len(names) == 0 {
			fmt.Fprintln(m.out, "no presets")
			return
		}
		for _, n := range names {
			fmt.Fprintf(m.out, "  %s\n", n)
		}
	case "delete":
		m.requireName(name, "p delete <name>", func() { m.report(m.session.DeletePreset(name)) })
	default:
		fmt.Fprintln(m.out, "usage: p save|load|smart|delete <name> | p list")
	}
}

func (m *Menu) doBackup(arg string) {
	sub, id := splitCommand(arg)
	switch sub {
	case "list", "":
		ids, err := m.session.Backups()
		if err != nil {
			fmt.Fprintf(m.out, "error: %v\n", err)
			return
		}
		if len(ids) == 0 {
			fmt.Fprintln(m.out, "no backups")
			return
		}
		for _, backupID := range ids {
			fmt.Fprintf(m.out, "  %s\n", backupID)
		}
	case "restore":
		m.requireName(id, "b restore <id>", func() { m.report(m.session.RestoreBackup(id)) })
	case "delete":
		m.requireName(id, "b delete <id>", func() { m.report(m.session.DeleteBackup(id)) })
	case "clear":
		removed, err := m.session.DeleteAllBackups()
		if err != nil {
			fmt.Fprintf(m.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(m.out, "removed %d backup(s)\n", removed)
	default:
		fmt.Fprintln(m.out, "usage: b list | b restore <id> | b delete <id> | b clear")
	}
}

func (m *Menu) doHistory() {
	records, err := m.session.History(20)
	if err != nil {
		fmt.Fprintf(m.out, "error: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(m.out, "no history")
		return
	}
	for _, rec := range records {
		line := rec.Operation
		if len(rec.Servers) > 0 {
			line += " " + strings.Join(rec.Servers, ",")
		}
		if rec.Detail != "" {
			line += " (" + rec.Detail + ")"
		}
		fmt.Fprintf(m.out, "  %s  %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), line)
	}
}

func (m *Menu) requireName(name, usage string, run func()) {
	if name == "" {
		fmt.Fprintf(m.out, "usage: %s\n", usage)
		return
	}
	run()
}

func (m *Menu) report(err error) {
	if err != nil {
		fmt.Fprintf(m.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(m.out, "ok")
}
