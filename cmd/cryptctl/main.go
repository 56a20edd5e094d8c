// Command cryptctl is the operator-facing CLI over pkg/client: list
// registered providers, inspect and manipulate key-storage slots, and
// drive multi-slot transactions (spec.md §4, SPEC_FULL.md's
// operator-tooling supplement).
//
// Grounded on kr/kr.go's cli.App/cli.Command shape: one subcommand per
// daemon operation, flags for the slot/provider arguments, fatal
// errors printed to stderr and a non-zero exit rather than panics.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	uuid "github.com/satori/go.uuid"
	"github.com/urfave/cli"

	"cryptdaemon.dev/cryptd/pkg/client"
	"cryptdaemon.dev/cryptd/pkg/keystore"
)

func fatal(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, color.RedString(fmt.Sprintf(format, args...)))
	os.Exit(1)
}

func dial(c *cli.Context) *client.Session {
	session, err := client.Dial(c.GlobalString("socket"))
	if err != nil {
		fatal("connecting to cryptd: %v", err)
	}
	return session
}

func keystoreProviderUUID(c *cli.Context) uuid.UUID {
	raw := c.GlobalString("keystore-provider")
	if raw == "" {
		fatal("missing --keystore-provider uuid")
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		fatal("parsing --keystore-provider: %v", err)
	}
	return id
}

func dialKeystore(c *cli.Context) (*client.Session, *client.Keystore) {
	session := dial(c)
	ks, err := session.Keystore(keystoreProviderUUID(c))
	if err != nil {
		fatal("handshaking with key-storage provider: %v", err)
	}
	return session, ks
}

func slotArg(c *cli.Context) keystore.SlotNumber {
	if !c.Args().Present() {
		fatal("missing slot number argument")
	}
	n, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		fatal("parsing slot number: %v", err)
	}
	return keystore.SlotNumber(n)
}

func listProvidersCommand(c *cli.Context) error {
	session := dial(c)
	defer session.Close()

	ids, err := session.ListProviders()
	if err != nil {
		fatal("listing providers: %v", err)
	}
	for _, id := range ids {
		fmt.Println(id.String())
	}
	return nil
}

func slotIsEmptyCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	n := slotArg(c)
	empty, err := ks.IsEmpty(n)
	if err != nil {
		fatal("checking slot %d: %v", n, err)
	}
	fmt.Println(empty)
	return nil
}

func slotListCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	numbers, err := ks.ListSlots()
	if err != nil {
		fatal("listing slots: %v", err)
	}
	for _, n := range numbers {
		fmt.Println(uint64(n))
	}
	return nil
}

func keystoreExportCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	buf, err := ks.Export()
	if err != nil {
		fatal("exporting key database: %v", err)
	}
	os.Stdout.Write(buf)
	return nil
}

func slotShowCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	n := slotArg(c)
	container, err := ks.OpenAsUser(n)
	if err != nil {
		fatal("opening slot %d: %v", n, err)
	}
	defer container.Close()

	content, err := container.Content()
	if err != nil {
		fatal("reading content properties: %v", err)
	}
	payload, err := container.Payload()
	if err != nil {
		fatal("reading payload: %v", err)
	}
	fmt.Printf("couid: %s@%d\n", content.COUID.UUID, content.COUID.Stamp)
	fmt.Printf("type: %d alg: %d bits: %d usage: %d\n", content.ObjectType, content.AlgorithmID, content.BitLength, content.AllowedUsage)
	payloadHex := hex.EncodeToString(payload)
	fmt.Printf("payload: %s\n", payloadHex)

	if c.Bool("clipboard") {
		if err := clipboard.WriteAll(payloadHex); err != nil {
			fatal("copying payload to clipboard: %v", err)
		}
		fmt.Fprintln(os.Stderr, color.GreenString("payload copied to clipboard"))
	}
	return nil
}

func slotSaveCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	n := slotArg(c)
	payload, err := hex.DecodeString(c.String("payload-hex"))
	if err != nil {
		fatal("decoding --payload-hex: %v", err)
	}
	couid, err := uuid.FromString(c.String("couid"))
	if err != nil {
		fatal("parsing --couid: %v", err)
	}

	container, err := ks.OpenAsOwner(n)
	if err != nil {
		fatal("opening slot %d for write: %v", n, err)
	}
	defer container.Close()

	content := keystore.ContentProps{
		COUID:        keystore.COUID{UUID: couid, Stamp: uint64(c.Uint64("stamp"))},
		ObjectType:   keystore.ObjectType(c.Uint("type")),
		AlgorithmID:  uint32(c.Uint("alg")),
		BitLength:    uint32(c.Uint("bits")),
		AllowedUsage: keystore.UsageFlags(c.Uint("usage")),
	}
	if err := container.Save(content, payload); err != nil {
		fatal("saving slot %d: %v", n, err)
	}
	return nil
}

func slotClearCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	n := slotArg(c)
	if err := ks.Clear(n); err != nil {
		fatal("clearing slot %d: %v", n, err)
	}
	return nil
}

func slotFindCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	couid, err := uuid.FromString(c.Args().First())
	if err != nil {
		fatal("parsing couid: %v", err)
	}
	n, err := ks.FindObject(couid, keystore.ObjectType(c.Uint("type")), nil, keystore.InvalidSlot)
	if err != nil {
		fatal("finding object: %v", err)
	}
	if n == keystore.InvalidSlot {
		fmt.Println("not found")
		return nil
	}
	fmt.Println(uint64(n))
	return nil
}

func txBeginCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	scope := make([]keystore.SlotNumber, 0, len(c.Args()))
	for _, a := range c.Args() {
		n, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			fatal("parsing slot number %q: %v", a, err)
		}
		scope = append(scope, keystore.SlotNumber(n))
	}
	id, err := ks.BeginTransaction(scope)
	if err != nil {
		fatal("beginning transaction: %v", err)
	}
	fmt.Println(id)
	return nil
}

func txCommitCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		fatal("parsing transaction id: %v", err)
	}
	if err := ks.CommitTransaction(id); err != nil {
		fatal("committing transaction %d: %v", id, err)
	}
	return nil
}

func txRollbackCommand(c *cli.Context) error {
	session, ks := dialKeystore(c)
	defer session.Close()

	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		fatal("parsing transaction id: %v", err)
	}
	if err := ks.RollbackTransaction(id); err != nil {
		fatal("rolling back transaction %d: %v", id, err)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "cryptctl"
	app.Usage = "inspect and control a running cryptd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Usage: "path to cryptd's UNIX-domain socket (default: the user's standard state directory)",
		},
		cli.StringFlag{
			Name:  "keystore-provider",
			Usage: "UUID of the key-storage provider to address",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "providers",
			Usage:  "list the provider UUIDs cryptd has registered",
			Action: listProvidersCommand,
		},
		{
			Name:  "slot",
			Usage: "inspect and manipulate key-storage slots",
			Subcommands: []cli.Command{
				{
					Name:   "list",
					Usage:  "list every provisioned slot number",
					Action: slotListCommand,
				},
				{
					Name:      "show",
					Usage:     "print a slot's content properties and payload",
					ArgsUsage: "<slot-number>",
					Flags: []cli.Flag{
						cli.BoolFlag{Name: "clipboard", Usage: "also copy the hex-encoded payload to the clipboard"},
					},
					Action: slotShowCommand,
				},
				{
					Name:      "is-empty",
					Usage:     "report whether a slot is user-visibly empty",
					ArgsUsage: "<slot-number>",
					Action:    slotIsEmptyCommand,
				},
				{
					Name:      "save",
					Usage:     "overwrite a slot's content (requires exclusive open)",
					ArgsUsage: "<slot-number>",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "payload-hex", Usage: "hex-encoded payload bytes"},
						cli.StringFlag{Name: "couid", Usage: "content-object UUID"},
						cli.Uint64Flag{Name: "stamp", Usage: "COUID version stamp"},
						cli.UintFlag{Name: "type", Usage: "object type code"},
						cli.UintFlag{Name: "alg", Usage: "algorithm id"},
						cli.UintFlag{Name: "bits", Usage: "bit length"},
						cli.UintFlag{Name: "usage", Usage: "allowed-usage bitmask"},
					},
					Action: slotSaveCommand,
				},
				{
					Name:      "clear",
					Usage:     "secure-erase a slot's payload",
					ArgsUsage: "<slot-number>",
					Action:    slotClearCommand,
				},
				{
					Name:      "find",
					Usage:     "locate the slot holding a content-object UUID",
					ArgsUsage: "<couid>",
					Flags: []cli.Flag{
						cli.UintFlag{Name: "type", Usage: "object type code to filter on"},
					},
					Action: slotFindCommand,
				},
			},
		},
		{
			Name:  "keystore",
			Usage: "administrative operations over the key-database description",
			Subcommands: []cli.Command{
				{
					Name:   "export",
					Usage:  "dump the live key-database description as JSON to stdout",
					Action: keystoreExportCommand,
				},
			},
		},
		{
			Name:  "tx",
			Usage: "drive multi-slot transactions",
			Subcommands: []cli.Command{
				{
					Name:      "begin",
					Usage:     "reserve a transaction over one or more slots",
					ArgsUsage: "<slot-number>...",
					Action:    txBeginCommand,
				},
				{
					Name:      "commit",
					Usage:     "commit a transaction's shadow content",
					ArgsUsage: "<transaction-id>",
					Action:    txCommitCommand,
				},
				{
					Name:      "rollback",
					Usage:     "discard a transaction's shadow content",
					ArgsUsage: "<transaction-id>",
					Action:    txRollbackCommand,
				},
			},
		},
	}
	app.Run(os.Args)
}
