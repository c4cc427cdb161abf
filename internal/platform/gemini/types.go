package gemini

// promptData is passed to the prompt template.
type promptData struct {
	Theme         string
	Keywords      []string
	Audience      string
	Style         string
	Platform      string
	Language      string
	Length        string
	IncludeImages bool
	IncludeVideos bool
}

// ResponseSchema is the JSON object the model is asked to return.
type ResponseSchema struct {
	// Title is a short headline for the post
	Title string `json:"title"`

	// Text is the post body
	Text string `json:"text"`

	// Tags are hashtags without the leading #
	Tags []string `json:"tags,omitempty"`

	// Images are descriptions of images to attach
	Images []string `json:"images,omitempty"`

	// Videos are descriptions of short videos to attach
	Videos []string `json:"videos,omitempty"`
}
