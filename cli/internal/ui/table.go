package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/CodinGakpo/DebateIT/cli/internal/signaling"
)

// ParticipantTable renders the room roster. The local participant is
// marked "(you)".
type ParticipantTable struct {
	self   *signaling.Participant
	others []signaling.Participant
}

func NewParticipantTable(self *signaling.Participant, others []signaling.Participant) *ParticipantTable {
	return &ParticipantTable{self: self, others: others}
}

func (t *ParticipantTable) View() string {
	var rows [][]string
	if t.self != nil {
		rows = append(rows, participantRow(*t.self, true))
	}
	for _, p := range t.others {
		rows = append(rows, participantRow(p, false))
	}
	if len(rows) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Role", "Mic").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col == 1:
				return tableCellStyle.Foreground(roleColor(rows[row][1]))
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func participantRow(p signaling.Participant, self bool) []string {
	name := truncate(p.Name, 24)
	if self {
		name += " (you)"
	}
	return []string{name, p.Role, MicLabel(p.Muted, p.Speaking)}
}

// MicLabel describes a participant's audio state.
func MicLabel(muted, speaking bool) string {
	switch {
	case muted:
		return IconMuted + " muted"
	case speaking:
		return IconSpeaking + " speaking"
	default:
		return IconMic + " live"
	}
}

func roleColor(role string) lipgloss.Color {
	if role == "Challenger" {
		return ChallengerColor
	}
	return DefenderColor
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

type RoomInfo struct {
	Code string
	Link string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.Code),
		IconWeb, MutedStyle.Render(r.Link),
	)
	return SuccessBoxStyle.Render(content)
}
