package util

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	helpIndent = "   "
	flagIndent = "  "
	flagGap    = 2
	maxWidth   = 160
)

var (
	sectionColor  = color.New(color.FgGreen, color.Bold).SprintFunc()
	categoryColor = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return maxWidth
}

// wrapText breaks text into lines no wider than width, keeping blank lines
// between paragraphs.
func wrapText(text string, width int) []string {
	var out []string
	for i, para := range strings.Split(text, "\n\n") {
		if i > 0 {
			out = append(out, "")
		}
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				out = append(out, line)
				line = w
				continue
			}
			line += " " + w
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

// flagField reads a field shared by the cli flag types, such as Category.
func flagField(f cli.Flag, name string) reflect.Value {
	v := reflect.ValueOf(f)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v.FieldByName(name)
}

func flagCategory(f cli.Flag) string {
	if fld := flagField(f, "Category"); fld.IsValid() && fld.Kind() == reflect.String {
		return fld.String()
	}
	return ""
}

func flagHidden(f cli.Flag) bool {
	if fld := flagField(f, "Hidden"); fld.IsValid() && fld.Kind() == reflect.Bool {
		return fld.Bool()
	}
	return false
}

func flagParts(f cli.Flag) (label, usage string) {
	label, usage, _ = strings.Cut(strings.TrimRight(f.String(), "\n"), "\t")
	return
}

// PrettierHelpPrinter replaces the cli help output with a colored layout
// that groups flags by category.
func PrettierHelpPrinter() {
	width := min(maxWidth, termWidth()) - 4
	fallback := cli.HelpPrinter

	cli.HelpPrinter = func(w io.Writer, templ string, data interface{}) {
		var (
			flags       []cli.Flag
			cmds        []*cli.Command
			name, usage string
			description string
		)
		switch v := data.(type) {
		case *cli.App:
			flags, cmds, name, usage, description = v.Flags, v.Commands, v.HelpName, v.Usage, v.Description
		case *cli.Command:
			flags, cmds, name, usage, description = v.Flags, v.Subcommands, v.HelpName, v.Usage, v.Description
		default:
			fallback(w, templ, data)
			return
		}

		fmt.Fprintf(w, "%s\n%s%s - %s\n\n", sectionColor("NAME:"), helpIndent, name, usage)

		fmt.Fprintf(w, "%s\n%s%s", sectionColor("USAGE:"), helpIndent, name)
		if len(cmds) > 0 {
			fmt.Fprint(w, " command")
		}
		if len(flags) > 0 {
			fmt.Fprint(w, " [options]")
		}
		fmt.Fprint(w, "\n\n")

		if description != "" {
			fmt.Fprintln(w, sectionColor("DESCRIPTION:"))
			for _, line := range wrapText(description, width-len(helpIndent)) {
				fmt.Fprintf(w, "%s%s\n", helpIndent, line)
			}
			fmt.Fprintln(w)
		}

		var visible []*cli.Command
		for _, c := range cmds {
			if !c.Hidden && c.Name != "help" {
				visible = append(visible, c)
			}
		}
		if len(visible) > 0 {
			fmt.Fprintln(w, sectionColor("COMMANDS:"))
			for _, c := range visible {
				fmt.Fprintf(w, "%s%-20s  %s\n", helpIndent, c.Name, c.Usage)
			}
			fmt.Fprintln(w)
		}

		byCategory := map[string][]cli.Flag{}
		labelWidth := 0
		for _, f := range flags {
			label, _ := flagParts(f)
			if flagHidden(f) || strings.HasPrefix(label, "--help") {
				continue
			}
			cat := flagCategory(f)
			byCategory[cat] = append(byCategory[cat], f)
			labelWidth = max(labelWidth, len(label))
		}
		if len(byCategory) == 0 {
			return
		}
		categories := make([]string, 0, len(byCategory))
		for cat := range byCategory {
			categories = append(categories, cat)
		}
		sort.Strings(categories)

		fmt.Fprintf(w, "%s\n\n", sectionColor("OPTIONS:"))
		usageWidth := width - len(flagIndent) - labelWidth - flagGap
		continuation := strings.Repeat(" ", len(flagIndent)+labelWidth+flagGap+2)
		for _, cat := range categories {
			heading := cat
			if heading == "" {
				heading = "Global Options"
			}
			fmt.Fprintf(w, "%s%s\n", flagIndent, categoryColor(heading))
			for _, f := range byCategory[cat] {
				label, usage := flagParts(f)
				lines := wrapText(usage, usageWidth)
				fmt.Fprintf(w, "%s%-*s%s%s\n", flagIndent, labelWidth, label, strings.Repeat(" ", flagGap), lines[0])
				for _, line := range lines[1:] {
					fmt.Fprintf(w, "%s%s\n", continuation, line)
				}
			}
			fmt.Fprintln(w)
		}
	}
}
