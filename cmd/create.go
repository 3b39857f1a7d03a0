package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/roomcode"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var createFlags callFlags

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for someone to join",
	Long: `Create a call room and share its code or link with the other party.

Examples:
  warpcall create
  warpcall create --name Alice --call video
  warpcall create --domain custom.example.com --relay --turn turn:turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRoom(cmd.Context(), &createFlags)
	},
}

func createRoom(ctx context.Context, flags *callFlags) error {
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

	code, err := cc.Room.CreateRoom(cfg.Username)
	if err != nil {
		return err
	}
	displayRoomInfo(code, cfg)

	return cc.RunConsole(ctx, ui.ConsoleOptions{
		RoomCode: code.String(),
		RoomLink: cfg.GetRoomLink(code),
		AutoCall: autoCall,
	})
}

func displayRoomInfo(code roomcode.Code, cfg *config.Config) {
	ui.RenderRoomInfo(code.String(), cfg.GetRoomLink(code))
}

func init() {
	rootCmd.AddCommand(createCmd)
	createFlags.register(createCmd)
}
