package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tebeka/atexit"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/autodispose/asm"
	"github.com/wippyai/autodispose/il"
	"github.com/wippyai/autodispose/module"
	"github.com/wippyai/autodispose/weaver"
)

type options struct {
	in          string
	asmFile     string
	out         string
	config      string
	refs        string
	dis         bool
	verify      bool
	verbose     bool
	interactive bool
}

func main() {
	var opts options
	flag.StringVar(&opts.in, "in", "", "Path to module image")
	flag.StringVar(&opts.asmFile, "asm", "", "Path to module assembler text")
	flag.StringVar(&opts.out, "out", "", "Output path (.asm writes text, anything else an image)")
	flag.StringVar(&opts.config, "config", "", "Config file (default: autodispose.toml next to the input)")
	flag.StringVar(&opts.refs, "ref", "", "Referenced modules (comma-separated)")
	flag.BoolVar(&opts.dis, "dis", false, "Print disassembly of woven methods")
	flag.BoolVar(&opts.verify, "verify", false, "Verify every woven method")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if (opts.in == "") == (opts.asmFile == "") {
		fmt.Fprintln(os.Stderr, "Usage: weave -in <module.adm> [-out file] [-ref a.adm,b.adm] [-config file]")
		fmt.Fprintln(os.Stderr, "       weave -asm <module.asm> [-dis] [-verify]")
		fmt.Fprintln(os.Stderr, "       weave -in <module.adm> -i  (interactive mode)")
		atexit.Exit(1)
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Register(func() { _ = logger.Sync() })
	weaver.SetLogger(logger)

	if err := run(opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// methodView holds one selected method before and after weaving.
type methodView struct {
	name    string
	before  string
	after   string
	regions int
}

func run(opts options, logger *zap.Logger) error {
	input := opts.in
	if input == "" {
		input = opts.asmFile
	}
	var (
		m   *module.Module
		err error
	)
	if opts.asmFile != "" {
		m, err = loadAsm(opts.asmFile)
	} else {
		m, err = module.Load(opts.in)
	}
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	cfg, err := loadConfig(opts, input)
	if err != nil {
		return err
	}

	if opts.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive mode needs a terminal")
	}

	before := make(map[string]string)
	for _, md := range m.BodiedMethods() {
		before[md.FullName()] = il.Disassemble(md.Body)
	}

	report, err := weaver.New(cfg).ProcessModule(context.Background(), m)
	if err != nil {
		return fmt.Errorf("weave: %w", err)
	}
	logger.Info("module woven",
		zap.String("module", m.Name),
		zap.Int("methods", len(report.Methods)),
		zap.Int("woven", report.Woven()),
		zap.Int("regions", report.Regions()))

	bodies := make(map[string]*il.MethodBody)
	for _, md := range m.BodiedMethods() {
		bodies[md.FullName()] = md.Body
	}
	views := make([]methodView, 0, len(report.Methods))
	for _, r := range report.Methods {
		views = append(views, methodView{
			name:    r.Method,
			before:  before[r.Method],
			after:   il.Disassemble(bodies[r.Method]),
			regions: r.Regions,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].name < views[j].name })

	if opts.out != "" {
		if err := save(opts.out, m); err != nil {
			return fmt.Errorf("write %s: %w", opts.out, err)
		}
	}

	if opts.interactive {
		return runInteractive(input, views)
	}

	fmt.Printf("Module: %s\n", m.Name)
	fmt.Printf("Methods: %d selected, %d woven, %d regions\n", len(report.Methods), report.Woven(), report.Regions())
	for _, v := range views {
		if v.regions == 0 {
			continue
		}
		fmt.Printf("  %s: %d\n", v.name, v.regions)
		if opts.dis {
			fmt.Printf("\n%s\n", v.after)
		}
	}
	return nil
}

func loadAsm(path string) (*module.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return asm.Parse(string(data))
}

// loadConfig reads the config file, then applies command line overrides.
func loadConfig(opts options, input string) (weaver.Config, error) {
	path := opts.config
	if path == "" {
		candidate := filepath.Join(filepath.Dir(input), weaver.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	file := &weaver.File{}
	if path != "" {
		f, err := weaver.LoadConfig(path)
		if err != nil {
			return weaver.Config{}, fmt.Errorf("config: %w", err)
		}
		file = f
	}
	if opts.refs != "" {
		file.Run.References = append(file.Run.References, absPaths(strings.Split(opts.refs, ","))...)
	}
	if opts.verify {
		file.Run.Verify = true
	}
	return file.Config()
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func save(path string, m *module.Module) error {
	if strings.EqualFold(filepath.Ext(path), ".asm") {
		return os.WriteFile(path, []byte(asm.Format(m)), 0o644)
	}
	return module.Save(path, m)
}
