// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chrislenderman/nabuadapter/internal/fetch"
	"github.com/chrislenderman/nabuadapter/internal/nabu"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <cycle_path> <http_host_and_path> <segment> <packet>",
	Short: "Resolve one packet through the store and print its header",
	Long: `inspect runs the packet store directly, without a serial link or
dispatcher, to resolve a single (segment, packet) pair and print its
header fields. Useful for debugging a cycle directory offline.`,
	Args: cobra.ExactArgs(4),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cycleDir := ensureTrailingSeparator(args[0])
	httpBase := args[1]

	segment, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: invalid segment %q: %v\n", args[2], err)
		os.Exit(2)
	}
	packet, err := strconv.ParseUint(args[3], 0, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: invalid packet number %q: %v\n", args[3], err)
		os.Exit(2)
	}

	store := nabu.NewStore(cycleDir, httpBase, fetch.NewClient())

	data, found, err := store.Lookup(context.Background(), uint32(segment), uint8(packet))
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(2)
	}
	if !found {
		fmt.Printf("segment %06X packet %d: not found\n", segment, packet)
		os.Exit(1)
	}

	printHeader(data, uint32(segment), uint8(packet))
	os.Exit(0)
	return nil
}

func printHeader(data []byte, segment uint32, packet uint8) {
	const headerLen = 16
	fmt.Printf("segment:      %06X\n", segment)
	fmt.Printf("packet:       %d\n", packet)
	fmt.Printf("total bytes:  %d\n", len(data))
	if len(data) < headerLen+2 {
		fmt.Println("(shorter than header+CRC; framed record too short to decode)")
		return
	}

	fmt.Printf("segment(hdr): %02X%02X%02X\n", data[0], data[1], data[2])
	fmt.Printf("packet(hdr):  %d\n", data[3])
	fmt.Printf("owner:        %02X\n", data[4])
	fmt.Printf("tier:         %02X\n", data[5])
	fmt.Printf("type byte:    %02X\n", data[11])
	fmt.Printf("payload len:  %d\n", len(data)-headerLen-2)

	crc := binary.BigEndian.Uint16(data[len(data)-2:])
	fmt.Printf("trailing crc: %04X\n", crc)
}
