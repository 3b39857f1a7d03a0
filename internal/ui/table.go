package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warpcall/internal/call"
)

// RoomInfoView renders the box shown after a room is created.
func RoomInfoView(code, link string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(code),
		IconWeb, MutedStyle.Render(link),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(code, link string) {
	fmt.Println(RoomInfoView(code, link))
}

// CallSummaryView renders finished calls as a table.
func CallSummaryView(history []call.CallSession) string {
	if len(history) == 0 {
		return MutedStyle.Render("No calls")
	}

	t := table.NewWriter()
	t.SetTitle("%s Call Summary", IconCall)
	t.AppendHeader(table.Row{"#", "Room", "Kind", "Direction", "Duration", "Local", "Remote"})
	for i, s := range history {
		direction := "incoming"
		if s.Outgoing {
			direction = "outgoing"
		}
		t.AppendRow(table.Row{
			i + 1,
			s.RoomCode.String(),
			s.Kind.String(),
			direction,
			FormatDuration(s.Duration()),
			len(s.LocalTracks),
			len(s.RemoteTracks),
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return t.Render()
}

func RenderCallSummary(history []call.CallSession) {
	fmt.Println(CallSummaryView(history))
}
