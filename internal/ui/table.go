package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sqott47/cinemate/internal/protocol"
)

// RosterTable renders the participant list.
func RosterTable(users []protocol.Participant, localID string) string {
	if len(users) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgHiMagenta, text.Bold}
	t.AppendHeader(table.Row{"", "Name", "Role", "Control", "Change", "Kick"})

	for _, u := range users {
		marker := ""
		if u.ID == localID {
			marker = IconPeer
		}
		t.AppendRow(table.Row{
			marker,
			u.Name,
			u.Role,
			yesNo(u.Permissions.ControlVideo),
			yesNo(u.Permissions.ChangeVideo),
			yesNo(u.Permissions.Kick),
		})
	}

	return t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

// RenderRoomInfo prints the freshly created room's id and share link.
func RenderRoomInfo(roomID, roomLink string) {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconLink, MutedStyle.Render(roomLink),
	)

	fmt.Println(boxStyle.Render(content))
}
