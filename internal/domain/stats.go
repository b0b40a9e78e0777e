package domain

// MonthlyStats — суммы за календарный месяц, сгруппированные по статусам.
// Корзины намеренно пересекаются: сумма подтвержденной заявки входит
// и в Requested, и в Approved, и в Confirmed — это накопительный отчет,
// на который завязан рендеринг месячной сводки в боте.
type MonthlyStats struct {
	Requested int64 `json:"requested"` // Все заявки месяца
	Approved  int64 `json:"approved"`  // Дошедшие до одобрения и дальше: approved, sent, confirmed
	Confirmed int64 `json:"confirmed"` // Только confirmed
	Rejected  int64 `json:"rejected"`  // Только rejected
}

// MonthReport — месячный отчет одним ответом: список заявок
// (активные сверху) плюс агрегаты.
type MonthReport struct {
	Year     int          `json:"year"`
	Month    int          `json:"month"`
	Requests []*Request   `json:"requests"`
	Stats    MonthlyStats `json:"stats"`
}
