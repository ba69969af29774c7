package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goldstargamingtv-droid/abyss-explorer-sub000/internal/store"
	"github.com/spf13/cobra"
)

var (
	sessionDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage persisted render sessions",
	Long: `Manage persisted render sessions including listing, inspecting, and
cleaning old sessions. A saved session records the render request, its
final stats, and the reference-orbit cache key, so a deep-zoom exploration
can be inspected or extended after a process restart.`,
}

var listSessionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all persisted sessions",
	Long:  `Display all sessions with metadata including session ID, timestamp, state, fractal kind, canvas size, and tile progress.`,
	RunE:  runListSessions,
}

var showSessionCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print one session's full record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSession,
}

var cleanSessionsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old sessions",
	Long: `Delete old sessions based on retention policy.
You can specify how many sessions to keep or delete sessions older than N days.`,
	RunE: runCleanSessions,
}

func init() {
	// Add sessions command to root
	rootCmd.AddCommand(sessionsCmd)

	// Add subcommands
	sessionsCmd.AddCommand(listSessionsCmd)
	sessionsCmd.AddCommand(showSessionCmd)
	sessionsCmd.AddCommand(cleanSessionsCmd)

	// Global flags for sessions command
	sessionsCmd.PersistentFlags().StringVar(&sessionDataDir, "data-dir", "./data", "Base directory for session storage")

	// Clean command flags
	cleanSessionsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N sessions (0 = keep all)")
	cleanSessionsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete sessions older than N days (0 = no age limit)")
	cleanSessionsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListSessions(cmd *cobra.Command, args []string) error {
	sessionStore, err := store.NewFSStore(sessionDataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	infos, err := sessionStore.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	// Display sessions in a table
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tTIMESTAMP\tSTATE\tKIND\tSIZE\tTILES\tDISK")
	fmt.Fprintln(w, "----------\t---------\t-----\t----\t----\t-----\t----")

	for _, info := range infos {
		// Get session directory size
		sessionDir := filepath.Join(sessionDataDir, "sessions", info.SessionID)
		size, err := getDirSize(sessionDir)
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		timestamp := info.Timestamp.Format("2006-01-02 15:04:05")

		// Truncate session ID for display
		displayID := info.SessionID
		if len(displayID) > 12 {
			displayID = displayID[:12] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dx%d\t%d/%d\t%s\n",
			displayID,
			timestamp,
			info.State,
			info.FractalKind,
			info.Width, info.Height,
			info.TilesCompleted, info.TilesTotal,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal sessions: %d\n", len(infos))
	return nil
}

func runShowSession(cmd *cobra.Command, args []string) error {
	sessionStore, err := store.NewFSStore(sessionDataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	session, err := sessionStore.LoadSession(args[0])
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runCleanSessions(cmd *cobra.Command, args []string) error {
	// Validate flags
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	sessionStore, err := store.NewFSStore(sessionDataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	infos, err := sessionStore.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions to clean.")
		return nil
	}

	// Determine which sessions to delete
	toDelete := selectSessionsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No sessions match deletion criteria.")
		return nil
	}

	// Show what will be deleted
	fmt.Printf("Found %d session(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		displayID := info.SessionID
		if len(displayID) > 12 {
			displayID = displayID[:12] + "..."
		}
		fmt.Printf("  - %s (%s, %s)\n",
			displayID,
			info.State,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Delete sessions
	deleted := 0
	failed := 0
	for _, info := range toDelete {
		err := sessionStore.DeleteSession(info.SessionID)
		if err != nil {
			slog.Error("Failed to delete session", "session_id", info.SessionID, "error", err)
			failed++
		} else {
			slog.Info("Deleted session", "session_id", info.SessionID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d session(s), %d failed.\n", deleted, failed)
	return nil
}

// selectSessionsForDeletion determines which sessions should be deleted based on retention policy
func selectSessionsForDeletion(infos []store.RenderSessionInfo, keepLast int, olderThanDays int) []store.RenderSessionInfo {
	var toDelete []store.RenderSessionInfo

	// Apply age-based deletion
	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
			}
		}
	}

	// Apply count-based deletion: keep the newest keepLast sessions and
	// delete the rest.
	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RenderSessionInfo, len(infos))
		copy(sorted, infos)

		// Sort by timestamp, oldest first
		for i := 0; i < len(sorted)-1; i++ {
			for j := 0; j < len(sorted)-i-1; j++ {
				if sorted[j].Timestamp.After(sorted[j+1].Timestamp) {
					sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
				}
			}
		}

		numToDelete := len(sorted) - keepLast
		for i := 0; i < numToDelete; i++ {
			// Check if not already in toDelete list
			found := false
			for _, existing := range toDelete {
				if existing.SessionID == sorted[i].SessionID {
					found = true
					break
				}
			}
			if !found {
				toDelete = append(toDelete, sorted[i])
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
