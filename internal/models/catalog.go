package models

import "time"

// CatalogItem — позиция каталога: тариф аренды кондиционера либо услуга
// (ремонт, обслуживание). Список загружается из configs/catalog.yaml
// и синхронизируется в БД при старте.
type CatalogItem struct {
	ID          int64    `yaml:"id" json:"id"`
	Kind        string   `yaml:"kind" json:"kind"` // rental | service
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Price       float64  `yaml:"price" json:"price"`
	Durations   []string `yaml:"durations,omitempty" json:"durations,omitempty"` // для аренды: "3_months", "6_months", ...
	SortOrder   int64    `yaml:"sort_order" json:"sort_order"`
	IsActive    bool     `yaml:"is_active" json:"is_active"`

	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// Technician — сотрудник, выполняющий заказы.
type Technician struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	TelegramID   int64     `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Review — отзыв клиента; публично отдаются только одобренные.
type Review struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"` // 1..5
	Text      string    `json:"text"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentSection — CMS-раздел маркетинговой страницы (hero, faq, gallery,
// testimonials, reasons, carousel). Payload хранится как JSON-документ.
type ContentSection struct {
	Section   string    `json:"section"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}
