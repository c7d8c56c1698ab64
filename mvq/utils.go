package mvq

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)
