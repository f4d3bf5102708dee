package imagegen

// platformAspectRatios maps delivery platforms to the aspect ratio their
// creatives use. Unknown platforms fall back to square.
var platformAspectRatios = map[string]string{
	"instagram_post":  "1:1",
	"instagram_story": "9:16",
	"facebook_ad":     "1:1",
	"linkedin":        "1:1",
	"twitter":         "16:9",
	"youtube":         "16:9",
	"tiktok":          "9:16",
	"custom":          "1:1",
}

// DefaultAspectRatio is used for unknown platforms.
const DefaultAspectRatio = "1:1"

// AspectRatioForPlatform returns the aspect ratio for a target platform.
func AspectRatioForPlatform(platform string) string {
	if ratio, ok := platformAspectRatios[platform]; ok {
		return ratio
	}
	return DefaultAspectRatio
}

// Platforms returns the known platform names, for request validation.
func Platforms() []string {
	names := make([]string, 0, len(platformAspectRatios))
	for name := range platformAspectRatios {
		names = append(names, name)
	}
	return names
}

// sizeForAspectRatio maps an aspect ratio to the nearest image size the
// upstream API accepts. The API offers a fixed size menu, so 16:9 and 9:16
// land on the closest wide and tall sizes.
func sizeForAspectRatio(ratio string) string {
	switch ratio {
	case "16:9":
		return "1792x1024"
	case "9:16":
		return "1024x1792"
	default:
		return "1024x1024"
	}
}
