package models

// Requests for the signal and session HTTP endpoints.

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type SignalsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type GenerateRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
}

type ProviderRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}

type UpdateSessionRequest struct {
	Name     string   `param:"name" json:"-" validate:"required"`
	Start    *string  `json:"start,omitempty" validate:"omitempty,datetime=15:04"`
	End      *string  `json:"end,omitempty" validate:"omitempty,datetime=15:04"`
	Timezone *string  `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Symbols  []string `json:"symbols,omitempty" validate:"omitempty,dive,required"`
	Active   *bool    `json:"active,omitempty"`
}

type UpcomingNewsRequest struct {
	Hours int `query:"hours" json:"hours" default:"24" validate:"gte=1,lte=720"`
}

type AddNewsEventRequest struct {
	Time          string `json:"time" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
	Impact        string `json:"impact" default:"high" validate:"oneof=low medium high"`
	Title         string `json:"title" validate:"required"`
	BufferMinutes int    `json:"buffer_minutes" default:"15" validate:"gte=0,lte=1440"`
}

type ArchiveRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}
