package model

type Channel struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Aliases     []string `json:"aliases" db:"aliases"`
	BaseImageID *string  `json:"base,omitempty" db:"base_image_id"`
}
