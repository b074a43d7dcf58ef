// cmd/pcr/main.go
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Fintehhe/Pending-Changes-Reviewer/client"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

var daemonAddr string

var rootCmd = &cobra.Command{
	Use:   "pcr",
	Short: "pcr reviews pending file changes",
	Long: `pcr talks to the pending-changes daemon to show, accept, and revert
file edits captured since their last reviewed state. Nothing is staged or
committed anywhere; accepting a change simply makes the current content the
new reference, and reverting restores the reference to disk.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:8417", "daemon address")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show pending changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := client.New(daemonAddr)

			state, err := cli.TrackingState()
			if err != nil {
				return fmt.Errorf("reaching daemon: %w", err)
			}

			changes, err := cli.Changes(false)
			if err != nil {
				return fmt.Errorf("listing changes: %w", err)
			}

			if !state.Active {
				fmt.Println("Tracking is off (use \"pcr track start\" to resume)")
			}

			if len(changes) == 0 {
				fmt.Println("No pending changes")
				return nil
			}

			var (
				modified []shared.ChangeEntry
				created  []shared.ChangeEntry
				deleted  []shared.ChangeEntry
			)
			for _, c := range changes {
				switch c.Kind {
				case shared.ChangeCreated:
					created = append(created, c)
				case shared.ChangeDeleted:
					deleted = append(deleted, c)
				default:
					modified = append(modified, c)
				}
			}

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()

			fmt.Printf("\nPending changes:\n\n")

			if len(modified) > 0 {
				fmt.Println("Modified files:")
				fmt.Println("  (use \"pcr accept <file>...\" to keep, \"pcr revert <file>...\" to undo)")
				for _, c := range modified {
					fmt.Printf("\t%s %s  +%d -%d\n", yellow("M"), c.Path, c.Additions, c.Deletions)
				}
				fmt.Println()
			}

			if len(created) > 0 {
				fmt.Println("New files:")
				fmt.Println("  (use \"pcr revert <file>...\" to delete them again)")
				for _, c := range created {
					fmt.Printf("\t%s %s  +%d\n", green("A"), c.Path, c.Additions)
				}
				fmt.Println()
			}

			if len(deleted) > 0 {
				fmt.Println("Deleted files:")
				fmt.Println("  (use \"pcr revert <file>...\" to restore them)")
				for _, c := range deleted {
					fmt.Printf("\t%s %s  -%d\n", red("D"), c.Path, c.Deletions)
				}
				fmt.Println()
			}

			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Show pending changes as unified diffs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := client.New(daemonAddr)

			paths := args
			if len(paths) == 0 {
				changes, err := cli.Changes(false)
				if err != nil {
					return fmt.Errorf("listing changes: %w", err)
				}
				for _, c := range changes {
					paths = append(paths, c.Path)
				}
			}

			if len(paths) == 0 {
				fmt.Println("No pending changes")
				return nil
			}

			for _, path := range paths {
				text, err := cli.Diff(path)
				if err != nil {
					return fmt.Errorf("showing diff for %s: %w", path, err)
				}
				printColoredDiff(text)
			}
			return nil
		},
	}

	var acceptCmd = &cobra.Command{
		Use:   "accept [paths...]",
		Short: "Make the current content the new reference",
		Long: `Accept pending changes. The files on disk are untouched; their current
content simply becomes the state future edits are compared against.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, "accept", "Accept all pending changes?")
		},
	}

	var revertCmd = &cobra.Command{
		Use:   "revert [paths...]",
		Short: "Restore files to their reference state",
		Long: `Revert pending changes by writing the reference content back to disk.
Created files are deleted, deleted files are restored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, "revert", "Revert all pending changes? This rewrites files on disk.")
		},
	}

	var untrackCmd = &cobra.Command{
		Use:   "untrack [paths...]",
		Short: "Stop tracking files without touching them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := client.New(daemonAddr)

			for _, path := range args {
				if err := cli.Untrack(path); err != nil {
					return fmt.Errorf("untracking %s: %w", path, err)
				}
			}

			fmt.Println("Stopped tracking:")
			for _, path := range args {
				fmt.Printf("  %s\n", path)
			}
			return nil
		},
	}

	var clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Forget every pending change",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm("Forget all pending changes? Files on disk are untouched.") {
				fmt.Println("Aborted")
				return nil
			}

			cli := client.New(daemonAddr)
			if err := cli.Clear(); err != nil {
				return fmt.Errorf("clearing changes: %w", err)
			}

			fmt.Println("Cleared all pending changes")
			return nil
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded review operations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cli := client.New(daemonAddr)
			entries, err := cli.History(limit)
			if err != nil {
				return fmt.Errorf("listing history: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No operations recorded")
				return nil
			}

			for _, e := range entries {
				id := e.ID
				if len(id) > 8 {
					id = id[:8]
				}
				switch e.Op {
				case "clear":
					fmt.Printf("%s  %s  %-7s\n", id, e.At.Format(time.RFC3339), e.Op)
				default:
					fmt.Printf("%s  %s  %-7s  %s  +%d -%d\n",
						id, e.At.Format(time.RFC3339), e.Op, e.Path, e.Additions, e.Deletions)
				}
			}
			return nil
		},
	}

	var trackCmd = &cobra.Command{
		Use:   "track",
		Short: "Control change tracking",
	}

	var trackStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Resume change tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := client.New(daemonAddr).StartTracking()
			if err != nil {
				return fmt.Errorf("starting tracking: %w", err)
			}
			printTrackingState(state)
			return nil
		},
	}

	var trackStopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Pause change tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := client.New(daemonAddr).StopTracking()
			if err != nil {
				return fmt.Errorf("stopping tracking: %w", err)
			}
			printTrackingState(state)
			return nil
		},
	}

	var trackStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show tracking state",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := client.New(daemonAddr).TrackingState()
			if err != nil {
				return fmt.Errorf("reaching daemon: %w", err)
			}
			printTrackingState(state)
			return nil
		},
	}

	var notifyCmd = &cobra.Command{
		Use:   "notify [opened|will-save|saved|closed] [path]",
		Short: "Send a document lifecycle event to the daemon",
		Long: `Send a document event the way an editor integration would. For opened,
will-save, and saved the content is read from the file, or from stdin with
--stdin (useful for will-save, where the new content is not on disk yet).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, path := args[0], args[1]
			cli := client.New(daemonAddr)

			if event == "closed" {
				return cli.NotifyClosed(path)
			}

			var text string
			useStdin, _ := cmd.Flags().GetBool("stdin")
			if useStdin {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(data)
			} else {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				text = string(data)
			}

			switch event {
			case "opened":
				return cli.NotifyOpened(path, text)
			case "will-save":
				return cli.NotifyWillSave(path, text)
			case "saved":
				return cli.NotifySaved(path, text)
			default:
				return fmt.Errorf("unknown event %q (want opened, will-save, saved, or closed)", event)
			}
		},
	}

	// Add flags
	acceptCmd.Flags().Bool("all", false, "accept every pending change")
	acceptCmd.Flags().BoolP("yes", "y", false, "skip confirmation prompts")
	revertCmd.Flags().Bool("all", false, "revert every pending change")
	revertCmd.Flags().BoolP("yes", "y", false, "skip confirmation prompts")
	clearCmd.Flags().BoolP("yes", "y", false, "skip confirmation prompts")
	historyCmd.Flags().IntP("limit", "n", 20, "maximum entries to show (0 for all)")
	notifyCmd.Flags().Bool("stdin", false, "read content from stdin instead of the file")

	// Add commands to root
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(notifyCmd)

	// Add tracking subcommands
	trackCmd.AddCommand(trackStartCmd)
	trackCmd.AddCommand(trackStopCmd)
	trackCmd.AddCommand(trackStatusCmd)
}

// runBatch drives accept and revert, which share their shape: explicit
// paths or --all, a confirmation for --all, and per-path outcomes.
func runBatch(cmd *cobra.Command, args []string, op string, allPrompt string) error {
	all, _ := cmd.Flags().GetBool("all")
	yes, _ := cmd.Flags().GetBool("yes")

	if !all && len(args) == 0 {
		return fmt.Errorf("specify files to %s, or pass --all", op)
	}

	cli := client.New(daemonAddr)
	call := cli.Accept
	if op == "revert" {
		call = cli.Revert
	}

	if all {
		if !yes && !confirm(allPrompt) {
			fmt.Println("Aborted")
			return nil
		}
		results, err := call(nil, true)
		if err != nil {
			return fmt.Errorf("%sing all changes: %w", op, err)
		}
		return printOutcomes(op, results)
	}

	if op == "revert" && !yes {
		proceed, err := confirmRestores(cli, args)
		if err != nil {
			return err
		}
		if !proceed {
			fmt.Println("Aborted")
			return nil
		}
	}

	// One request per path so the bar reflects actual progress.
	var results []shared.Outcome
	if len(args) > 1 {
		bar := pb.StartNew(len(args))
		for _, path := range args {
			res, err := call([]string{path}, false)
			if err != nil {
				bar.Finish()
				return fmt.Errorf("%s %s: %w", op, path, err)
			}
			results = append(results, res...)
			bar.Increment()
		}
		bar.Finish()
	} else {
		res, err := call(args, false)
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, args[0], err)
		}
		results = res
	}

	return printOutcomes(op, results)
}

// confirmRestores prompts before reverting deleted files, since that
// recreates them on disk. Declining any prompt aborts the whole command.
func confirmRestores(cli *client.Client, paths []string) (bool, error) {
	changes, err := cli.Changes(false)
	if err != nil {
		return false, fmt.Errorf("listing changes: %w", err)
	}

	kinds := make(map[string]shared.ChangeKind, len(changes))
	for _, c := range changes {
		kinds[c.Path] = c.Kind
	}

	for _, path := range paths {
		if kinds[path] == shared.ChangeDeleted {
			if !confirm(fmt.Sprintf("Restore deleted file %s to disk?", path)) {
				return false, nil
			}
		}
	}
	return true, nil
}

func printOutcomes(op string, results []shared.Outcome) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	failed := 0
	for _, res := range results {
		if res.OK {
			fmt.Printf("  %s %s\n", green("✓"), res.Path)
		} else {
			failed++
			fmt.Printf("  %s %s: %s\n", red("✗"), res.Path, res.Error)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%s failed for %d of %d files", op, failed, len(results))
	}
	return nil
}

func printTrackingState(state shared.TrackingState) {
	status := "off"
	if state.Active {
		status = "on"
	}
	fmt.Printf("Tracking is %s (%d tracked, %d deleted, %d open buffers)\n",
		status, state.Tracked, state.Deleted, state.OpenBuffers)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printColoredDiff(diff string) {
	// Create color objects
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	lines := strings.Split(diff, "\n")
	for _, line := range lines {
		if len(line) == 0 {
			fmt.Println()
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
