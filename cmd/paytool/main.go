package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/kaleidoswap/desktop-app-sub002/build"
	"github.com/kaleidoswap/desktop-app-sub002/paycfg"
)

// command is a subcommand of the tool.
type command interface {
	flags.Commander

	Register(parser *flags.Parser) error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			_, _ = fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}

		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// The global options are declared on the parser so they show up in
	// the help output and are skipped over when a command is dispatched.
	// The values used at runtime come from paycfg.LoadConfig, which also
	// reads the config file.
	globals := paycfg.DefaultConfig()
	parser := flags.NewParser(&globals, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = true

	app := &app{}
	commands := []command{
		newConvertCommand(app),
		newClassifyCommand(app),
		newBoundsCommand(app),
		newQuoteCommand(app),
		newPayCommand(app),
		newResumeCommand(app),
		newPaymentsCommand(app),
		newAssetsCommand(app),
	}
	for _, c := range commands {
		if err := c.Register(parser); err != nil {
			return err
		}
	}

	parser.CommandHandler = func(cmd flags.Commander, rest []string) error {
		if globals.ShowVersion {
			fmt.Println("paytool version", build.Version())
			return nil
		}
		if cmd == nil {
			return errors.New("no command given, see --help")
		}

		cfg, err := paycfg.LoadConfig(args)
		if err != nil {
			return err
		}

		if err := app.start(cfg); err != nil {
			return err
		}
		defer app.stop()

		return cmd.Execute(rest)
	}

	_, err := parser.ParseArgs(args)

	return err
}
