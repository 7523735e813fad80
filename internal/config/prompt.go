package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter asks for configuration values interactively.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	// ReadSecret reads a value without echo; nil falls back to a plain line read.
	ReadSecret func() (string, error)
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) line(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	input, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", fmt.Errorf("error reading input: %w", err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

func (p *Prompter) secret(question, def string) (string, error) {
	if p.ReadSecret == nil {
		return p.line(question, def)
	}
	fmt.Fprintf(p.out, "%s: ", question)
	value, err := p.ReadSecret()
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("error reading input: %w", err)
	}
	if value = strings.TrimSpace(value); value == "" {
		return def, nil
	}
	return value, nil
}

func (p *Prompter) number(question string, def int) (int, error) {
	for {
		value, err := p.line(question, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(value)
		if err == nil && n > 0 {
			return n, nil
		}
		fmt.Fprintln(p.out, "please enter a positive number")
	}
}

// Run walks through every setting, starting from base.
func (p *Prompter) Run(base Config) (Config, error) {
	cfg := base
	var err error
	for {
		choice, err := p.line("Site (1. e-hentai, 2. exhentai)", "1")
		if err != nil {
			return Config{}, err
		}
		if choice == "1" || choice == DomainEHentai {
			cfg.Domain = DomainEHentai
			break
		}
		if choice == "2" || choice == DomainExHentai {
			cfg.Domain = DomainExHentai
			break
		}
		fmt.Fprintln(p.out, "please enter 1 or 2")
	}
	if cfg.Cookies.MemberID, err = p.line("ipb_member_id", cfg.Cookies.MemberID); err != nil {
		return Config{}, err
	}
	if cfg.Cookies.PassHash, err = p.secret("ipb_pass_hash", cfg.Cookies.PassHash); err != nil {
		return Config{}, err
	}
	if cfg.Domain == DomainExHentai {
		if cfg.Cookies.Igneous, err = p.secret("igneous", cfg.Cookies.Igneous); err != nil {
			return Config{}, err
		}
	}
	if cfg.Proxy, err = p.line("Proxy (e.g. http://127.0.0.1:8787, blank for none)", cfg.Proxy); err != nil {
		return Config{}, err
	}
	fmt.Fprintln(p.out, "Filename placeholders: {gn} title, {gj} japanese title, {gid}, {post_utc_time}, {post_shanghai_time}, {now_time}, {group}, {group_tra}; '/' creates folders")
	if cfg.FilenameRule, err = p.line("Filename rule", cfg.FilenameRule); err != nil {
		return Config{}, err
	}
	if cfg.OutputDir, err = p.line("Download folder", cfg.OutputDir); err != nil {
		return Config{}, err
	}
	meta, err := p.line("Save gallery metadata next to archives (y/n)", map[bool]string{true: "y", false: "n"}[cfg.WriteMetadata])
	if err != nil {
		return Config{}, err
	}
	cfg.WriteMetadata = strings.EqualFold(meta, "y") || strings.EqualFold(meta, "yes")
	if cfg.MaxWorkers, err = p.number("Galleries downloaded at once", cfg.MaxWorkers); err != nil {
		return Config{}, err
	}
	if cfg.ThreadCount, err = p.number("Connections per gallery", cfg.ThreadCount); err != nil {
		return Config{}, err
	}
	if cfg.Quality, err = p.line("Preferred quality (original/resample)", cfg.Quality); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
