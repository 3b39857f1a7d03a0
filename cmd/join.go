package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var joinFlags callFlags

var joinCmd = &cobra.Command{
	Use:     "join <room-code|url>",
	Aliases: []string{"j"},
	Short:   "Join a room created by someone else",
	Long: `Join a call room by its code or share link.

Examples:
  warpcall join AB12CD
  warpcall join https://warpcall.qzz.io/?room=AB12CD
  warpcall join ab12cd --call audio --join-timeout 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return joinRoom(cmd.Context(), input, &joinFlags)
	},
}

func joinRoom(ctx context.Context, input string, flags *callFlags) error {
	// Reject malformed codes before touching the network.
	code, err := roomcode.Validate(input)
	if err != nil {
		return err
	}
	autoCall, err := flags.autoCall()
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(flags.options())
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	cc, err := NewConnectionContext(ctx, cfg, flags)
	stopSpinner()
	if err != nil {
		return err
	}
	defer cc.Close()

	if err := cc.Room.JoinRoom(code.String(), cfg.Username); err != nil {
		return err
	}

	waitCtx := ctx
	if cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.JoinTimeout)
		defer cancel()
	}

	stopSpinner = ui.RunWaitingSpinner(fmt.Sprintf("Joining room %s...", code))
	peer, err := cc.Room.Wait(waitCtx)
	stopSpinner()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return call.WrapError("join room", err, fmt.Sprintf("no reply within %s", cfg.JoinTimeout))
		}
		return call.NewError("join room", err)
	}
	ui.PrintSuccessf("Joined room %s with %s", code, peer)

	return cc.RunConsole(ctx, ui.ConsoleOptions{
		RoomCode: code.String(),
		RoomLink: cfg.GetRoomLink(code),
		Peer:     peer,
		AutoCall: autoCall,
	})
}

// parseRoomInput accepts a bare code or a share link. The code is returned
// as found; validation happens when joining.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room code cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		code, err := extractRoomCodeFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room code: %s", code)
		return code, nil
	}

	return input, nil
}

func extractRoomCodeFromURL(urlStr string) (string, error) {
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", call.NewError("parse URL", err)
	}

	if code := parsedURL.Query().Get("room"); code != "" {
		return code, nil
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room code from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinFlags.register(joinCmd)
}
