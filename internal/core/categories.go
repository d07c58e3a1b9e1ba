package core

// Category is a selectable transaction category.
type Category struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var defaultCategories = []Category{
	{Name: "Alimentação", Icon: "utensils"},
	{Name: "Transporte", Icon: "car"},
	{Name: "Lazer", Icon: "gamepad"},
	{Name: "Saúde", Icon: "heart"},
	{Name: "Moradia", Icon: "home"},
	{Name: "Salário", Icon: "briefcase"},
	{Name: "Investimentos", Icon: "trending-up"},
	{Name: "Outros", Icon: "more-horizontal"},
}

// DefaultCategories returns a copy of the built-in category list.
func DefaultCategories() []Category {
	return append([]Category(nil), defaultCategories...)
}

// IsDefaultCategory reports whether name is one of the built-in categories.
func IsDefaultCategory(name string) bool {
	for _, c := range defaultCategories {
		if c.Name == name {
			return true
		}
	}
	return false
}
