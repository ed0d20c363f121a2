package console

import (
	"strconv"
	"strings"

	"github.com/muesli/termenv"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"
)

const (
	colorX = "#E06C75"
	colorO = "#61AFEF"
)

// RenderBoard - draws the board in rows; empty squares show their index.
func RenderBoard(out *termenv.Output, board entity.Board) string {
	var sb strings.Builder

	for row := 0; row < 3; row++ {
		cells := make([]string, 0, 3)
		for col := 0; col < 3; col++ {
			cells = append(cells, renderCell(out, row*3+col, board[row*3+col]))
		}

		sb.WriteString(" " + strings.Join(cells, " | ") + "\n")
		if row < 2 {
			sb.WriteString("---+---+---\n")
		}
	}

	return sb.String()
}

func renderCell(out *termenv.Output, index int, cell entity.Cell) string {
	switch cell {
	case entity.PlayerX:
		return out.String(cell.String()).Foreground(out.Color(colorX)).Bold().String()
	case entity.PlayerO:
		return out.String(cell.String()).Foreground(out.Color(colorO)).Bold().String()
	default:
		return out.String(strconv.Itoa(index)).Faint().String()
	}
}
