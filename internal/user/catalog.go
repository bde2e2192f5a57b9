// AngelaMos | 2026
// catalog.go

package user

// Category is one subscribable content category with its monthly price
// in GNF.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// Categories is the package catalogue. Prices are per category per
// month; a user's monthly price is the sum of their selection.
var Categories = []Category{
	{ID: "sports", Name: "Sports", Price: 20000, Icon: "⚽", Description: "Live sports, SuperSport, ESPN"},
	{ID: "french", Name: "French", Price: 15000, Icon: "🇫🇷", Description: "French channels, movies, series"},
	{ID: "nollywood", Name: "Nollywood", Price: 15000, Icon: "🎬", Description: "Nigerian/African movies and series"},
	{ID: "kdrama", Name: "K-Drama", Price: 10000, Icon: "🇰🇷", Description: "Korean dramas"},
	{ID: "kids", Name: "Kids", Price: 10000, Icon: "👶", Description: "Children's content"},
	{ID: "music", Name: "Music/VOYO", Price: 10000, Icon: "🎵", Description: "Music streaming"},
	{ID: "livetv", Name: "Live TV Basic", Price: 10000, Icon: "📺", Description: "Basic live channels"},
	{ID: "premium", Name: "Premium Movies", Price: 15000, Icon: "🎥", Description: "Latest releases"},
}

// ValidCategories splits a selection into known and unknown ids.
func ValidCategories(ids []string) (valid bool, unknown []string) {
	for _, id := range ids {
		if categoryByID(id) == nil {
			unknown = append(unknown, id)
		}
	}
	return len(unknown) == 0, unknown
}

// PriceFor sums the monthly price of a category selection.
func PriceFor(ids []string) int64 {
	var total int64
	for _, id := range ids {
		if c := categoryByID(id); c != nil {
			total += c.Price
		}
	}
	return total
}

func categoryByID(id string) *Category {
	for i := range Categories {
		if Categories[i].ID == id {
			return &Categories[i]
		}
	}
	return nil
}
