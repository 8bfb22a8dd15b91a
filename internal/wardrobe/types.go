package wardrobe

import "encoding/json"

// Prediction is one class score from the classifier.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Classification is the classifier's headline answer.
type Classification struct {
	PredictedClass string       `json:"predicted_class"`
	Confidence     float64      `json:"confidence"`
	AllPredictions []Prediction `json:"all_predictions"`
}

// AttributeAnalysis describes detected garment attributes.
type AttributeAnalysis struct {
	Attributes        map[string][]string `json:"attributes,omitempty"`
	ConfidenceScores  map[string]float64  `json:"confidence_scores,omitempty"`
	OverallConfidence float64             `json:"overall_confidence"`
	EnhancedAnalysis  json.RawMessage     `json:"enhanced_analysis,omitempty"`
	ProcessingTime    float64             `json:"processing_time,omitempty"`
	Timestamp         string              `json:"timestamp,omitempty"`
}

// ImageQuality grades the uploaded photo.
type ImageQuality struct {
	Grade           string             `json:"grade"`
	OverallScore    float64            `json:"overall_score"`
	ComponentScores map[string]float64 `json:"component_scores,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// ClassificationResponse is the payload of /api/classify.
type ClassificationResponse struct {
	Success          bool               `json:"success"`
	Classification   *Classification    `json:"classification"`
	Attributes       *AttributeAnalysis `json:"attributes,omitempty"`
	ImageQuality     *ImageQuality      `json:"image_quality,omitempty"`
	ProcessingTimeMS float64            `json:"processing_time_ms,omitempty"`
	ModelVersion     string             `json:"model_version,omitempty"`
	Timestamp        string             `json:"timestamp,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// RecommendationInput drives /api/recommendations.
type RecommendationInput struct {
	StylePreferences []string `json:"style_preferences"`
	BodyType         string   `json:"body_type,omitempty"`
	Occasion         string   `json:"occasion,omitempty"`
}

// RegisterInput creates the backend user for an already signed-in identity.
type RegisterInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	FirebaseUID string `json:"firebaseUid"`
	DisplayName string `json:"displayName,omitempty"`
}

// User is the backend profile.
type User struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	Username        string          `json:"username"`
	DisplayName     string          `json:"displayName,omitempty"`
	PhotoURL        string          `json:"photoURL,omitempty"`
	Profile         UserProfile     `json:"profile"`
	Preferences     UserPreferences `json:"preferences"`
	Subscription    Subscription    `json:"subscription"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	IsActive        bool            `json:"isActive"`
	IsEmailVerified bool            `json:"isEmailVerified,omitempty"`
}

// UserProfile holds body and style details.
type UserProfile struct {
	Age              int      `json:"age,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	StylePreferences []string `json:"stylePreferences"`
	BodyType         string   `json:"bodyType,omitempty"`
	Location         string   `json:"location,omitempty"`
	ProfilePicture   string   `json:"profilePicture,omitempty"`
}

// UserPreferences holds colour and occasion preferences.
type UserPreferences struct {
	FavoriteColors      []string        `json:"favoriteColors"`
	DislikedColors      []string        `json:"dislikedColors"`
	StylePersonality    string          `json:"stylePersonality,omitempty"`
	OccasionPreferences map[string]bool `json:"occasionPreferences,omitempty"`
}

// Subscription is the user's plan.
type Subscription struct {
	Plan      string `json:"plan"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// ClothingItem is one garment in a wardrobe.
type ClothingItem struct {
	ID           string   `json:"id,omitempty"`
	UserID       string   `json:"userId,omitempty"`
	WardrobeID   string   `json:"wardrobeId"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Brand        string   `json:"brand,omitempty"`
	Color        string   `json:"color"`
	Size         string   `json:"size,omitempty"`
	Price        float64  `json:"price,omitempty"`
	PurchaseDate string   `json:"purchaseDate,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Tags         []string `json:"tags"`
	Notes        string   `json:"notes,omitempty"`
	IsFavorite   bool     `json:"isFavorite"`
	TimesWorn    int      `json:"timesWorn"`
	LastWorn     string   `json:"lastWorn,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
	AIClassified bool     `json:"aiClassified,omitempty"`
}

// ClothingQuery filters /api/clothing listings.
type ClothingQuery struct {
	WardrobeID string
	Page       int
	Limit      int
}

// Wardrobe groups clothing items.
type Wardrobe struct {
	ID          string   `json:"_id"`
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	IsDefault   bool     `json:"isDefault"`
	Items       []string `json:"items"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// WeatherContext conditions outfit generation.
type WeatherContext struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
}

// OutfitInput drives /api/outfits/generate.
type OutfitInput struct {
	Occasion string
	Season   string
	Weather  *WeatherContext
	ItemIDs  []string
	Count    int
}

// Outfit is a generated outfit recommendation.
type Outfit struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Items          []string        `json:"items"`
	Occasion       string          `json:"occasion"`
	Season         string          `json:"season"`
	Score          float64         `json:"score"`
	Explanation    []string        `json:"explanation"`
	Tags           []string        `json:"tags"`
	WeatherContext *WeatherContext `json:"weatherContext,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
}
