package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/config"
	"github.com/dohr-michael/groqlink/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage the encrypted API key",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "key-file",
				Usage: "Path to the age identity",
				Value: config.KeyPath(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the age identity if it does not exist",
				Action: runSecretInit,
			},
			{
				Name:      "encrypt",
				Usage:     "Print the sealed form of a value",
				ArgsUsage: "<value>",
				Action:    runSecretEncrypt,
			},
			{
				Name:      "set",
				Usage:     "Seal a value and store it in the .env file",
				ArgsUsage: "<KEY> <value>",
				Action:    runSecretSet,
			},
		},
	}
}

func runSecretInit(_ context.Context, cmd *cli.Command) error {
	k, created, err := secrets.InitKeyring(cmd.String("key-file"))
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created %s\n", k.Path())
	} else {
		fmt.Printf("Using existing %s\n", k.Path())
	}
	fmt.Printf("Public key: %s\n", k.Recipient())
	return nil
}

func runSecretEncrypt(_ context.Context, cmd *cli.Command) error {
	value := cmd.Args().First()
	if value == "" {
		return fmt.Errorf("usage: groqlink secret encrypt <value>")
	}
	sealed, err := seal(cmd.String("key-file"), value)
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}

func runSecretSet(_ context.Context, cmd *cli.Command) error {
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)
	if key == "" || value == "" {
		return fmt.Errorf("usage: groqlink secret set <KEY> <value>")
	}
	sealed, err := seal(cmd.String("key-file"), value)
	if err != nil {
		return err
	}
	path := config.DotenvPath()
	if err := secrets.SetEntry(path, key, sealed); err != nil {
		return err
	}
	fmt.Printf("Stored %s in %s\n", key, path)
	return nil
}

func seal(keyPath, value string) (string, error) {
	k, _, err := secrets.InitKeyring(keyPath)
	if err != nil {
		return "", err
	}
	return k.Seal(value)
}
