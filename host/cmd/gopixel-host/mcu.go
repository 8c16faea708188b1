package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gopixel/host/mcu"
)

var (
	mcuDevice string
	dictRaw   bool
)

// connect opens --device, falling back to the config file's device.
func connect() (*mcu.MCU, error) {
	file, err := loadFile()
	if err != nil {
		return nil, err
	}
	sf := stripFlags{device: mcuDevice}
	return mcu.Connect(sf.deviceName(file), log)
}

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Print the firmware's data dictionary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := connect()
		if err != nil {
			return err
		}
		defer m.Close()
		if dictRaw {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", m.RawDictionary())
			return err
		}
		printDictionary(cmd.OutOrStdout(), m.Dictionary())
		return nil
	},
}

func printDictionary(w io.Writer, d *mcu.Dictionary) {
	fmt.Fprintf(w, "version: %s (%s)\n", d.Version, d.BuildVersions)
	fmt.Fprintln(w, "constants:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}
	printMessages(w, "commands", d.Commands)
	printMessages(w, "responses", d.Responses)
	fmt.Fprintln(w, "enumerations:")
	for _, name := range sortedKeys(d.Enumerations) {
		fmt.Fprintf(w, "  %s: %d values\n", name, len(d.Enumerations[name]))
	}
}

func printMessages(w io.Writer, title string, msgs map[string]int) {
	fmt.Fprintf(w, "%s:\n", title)
	sigs := sortedKeys(msgs)
	sort.Slice(sigs, func(i, j int) bool { return msgs[sigs[i]] < msgs[sigs[j]] })
	for _, sig := range sigs {
		fmt.Fprintf(w, "  %3d  %s\n", msgs[sig], sig)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session with the firmware",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := connect()
		if err != nil {
			return err
		}
		defer m.Close()
		return runShell(m, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// runShell reads one command per line until EOF or quit.
func runShell(m *mcu.MCU, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" || fields[0] == "q" {
			return nil
		}
		if err := shellCommand(m, fields, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func shellCommand(m *mcu.MCU, fields []string, out io.Writer) error {
	switch fields[0] {
	case "help", "?":
		fmt.Fprintln(out, `commands:
  dict            dictionary summary
  raw             raw dictionary
  clock           cycle counter
  uptime          cycles since boot
  status          configuration and shutdown state
  send <oid>      transmit a strip's staging buffer
  estop           emergency stop
  reset           forget all strips and leave shutdown
  quit            exit`)
	case "dict":
		printDictionary(out, m.Dictionary())
	case "raw":
		fmt.Fprintf(out, "%s\n", m.RawDictionary())
	case "clock":
		c, err := m.Clock()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "clock %d\n", c)
	case "uptime":
		u, err := m.Uptime()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "uptime %d cycles\n", u)
	case "status":
		st, err := m.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "configured=%t crc=0x%08x shutdown=%t\n", st.Configured, st.CRC, st.Shutdown)
	case "send":
		if len(fields) != 2 {
			return fmt.Errorf("usage: send <oid>")
		}
		oid, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return err
		}
		if err := m.SendStrip(uint8(oid)); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
	case "estop":
		return m.EmergencyStop()
	case "reset":
		return m.Reset()
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{dictCmd, shellCmd} {
		c.Flags().StringVar(&mcuDevice, "device", "", "serial device of the MCU (default "+defaultDevice+")")
	}
	dictCmd.Flags().BoolVar(&dictRaw, "raw", false, "print the JSON as received")
	rootCmd.AddCommand(dictCmd, shellCmd)
}
