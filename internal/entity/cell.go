package entity

// Cell is the content of one board square.
type Cell string

const (
	PlayerX   Cell = "X"
	PlayerO   Cell = "O"
	EmptyCell Cell = ""
)

func (that Cell) String() string {
	if that == EmptyCell {
		return " "
	}

	return string(that)
}
