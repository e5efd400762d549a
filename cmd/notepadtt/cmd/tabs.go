package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/rpc/client"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	serverURL   string
	callTimeout time.Duration
)

// tabsCmd talks to a running server.
var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "Inspect and edit tabs on a running server",
	Long: `Inspect and edit tabs on a running notepadtt server over its
JSON-RPC WebSocket endpoint.

Examples:
  notepadtt tabs list
  notepadtt tabs cat notes.txt
  echo "hello" | notepadtt tabs write notes.txt
  notepadtt tabs list --url ws://192.168.1.20:5000/ws`,
}

var tabsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tabs in display order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTabsClient(cmd, func(ctx context.Context, tc *client.TabsClient) error {
			info, err := tc.Info(ctx)
			if err != nil {
				return err
			}
			return printTabs(cmd.OutOrStdout(), info)
		})
	},
}

var tabsCatCmd = &cobra.Command{
	Use:   "cat <filename|fileId>",
	Short: "Print the text of a tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTabsClient(cmd, func(ctx context.Context, tc *client.TabsClient) error {
			info, err := tc.Info(ctx)
			if err != nil {
				return err
			}
			tab, err := findTab(info, args[0])
			if err != nil {
				return err
			}
			content, err := tc.Content(ctx, tab.FileID)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content.Text)
			return err
		})
	},
}

var tabsWriteCmd = &cobra.Command{
	Use:   "write <filename|fileId>",
	Short: "Replace the text of a tab with standard input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		return withTabsClient(cmd, func(ctx context.Context, tc *client.TabsClient) error {
			info, err := tc.Info(ctx)
			if err != nil {
				return err
			}
			tab, err := findTab(info, args[0])
			if err != nil {
				return err
			}
			if err := tc.SetContent(ctx, tab.FileID, string(text)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(text), tab.Filename)
			return nil
		})
	},
}

func init() {
	tabsCmd.PersistentFlags().StringVar(&serverURL, "url", "", "WebSocket URL of the server (default: from config)")
	tabsCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 10*time.Second, "request timeout")

	tabsCmd.AddCommand(tabsListCmd)
	tabsCmd.AddCommand(tabsCatCmd)
	tabsCmd.AddCommand(tabsWriteCmd)
}

func withTabsClient(cmd *cobra.Command, fn func(context.Context, *client.TabsClient) error) error {
	url := serverURL
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		url = localWebSocketURL(cfg.Server.Host, cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	tc, err := client.NewTabsClient(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer tc.Close()

	return fn(ctx, tc)
}

// localWebSocketURL maps a bind address to a dialable URL.
func localWebSocketURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/ws"
}

func findTab(info *domain.Info, ref string) (domain.TabInfo, error) {
	tab, ok := lo.Find(info.TabInfos, func(t domain.TabInfo) bool {
		return t.Filename == ref
	})
	if !ok {
		tab, ok = lo.Find(info.TabInfos, func(t domain.TabInfo) bool {
			return t.FileID == ref
		})
	}
	if !ok {
		return domain.TabInfo{}, fmt.Errorf("no tab named %q", ref)
	}
	return tab, nil
}

func printTabs(w io.Writer, info *domain.Info) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tFILENAME\tPROTECTED\tFILE ID")
	for _, t := range info.TabInfos {
		marker := " "
		if t.FileID == info.Active() {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", marker, t.Filename, t.IsProtected, t.FileID)
	}
	return tw.Flush()
}
