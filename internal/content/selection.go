package content

var (
	aspectRatios = []string{"1:1", "2:3", "3:2", "16:9", "9:16"}
	imageSizes   = []string{"1K", "2K", "4K"}
)

func AspectRatios() []string { return append([]string(nil), aspectRatios...) }
func ImageSizes() []string   { return append([]string(nil), imageSizes...) }

// Selection is the image generation configuration shared by every item of a
// session. Values only move by cycling through the fixed option lists.
type Selection struct {
	AspectRatio string `json:"aspectRatio" yaml:"aspectRatio"`
	ImageSize   string `json:"imageSize" yaml:"imageSize"`
}

func DefaultSelection() Selection {
	return Selection{AspectRatio: aspectRatios[0], ImageSize: imageSizes[0]}
}

// Normalize replaces values outside the option lists with the defaults.
func (s Selection) Normalize() Selection {
	if indexOf(aspectRatios, s.AspectRatio) < 0 {
		s.AspectRatio = aspectRatios[0]
	}
	if indexOf(imageSizes, s.ImageSize) < 0 {
		s.ImageSize = imageSizes[0]
	}
	return s
}

func (s Selection) NextAspectRatio() Selection {
	s.AspectRatio = cycle(aspectRatios, s.AspectRatio)
	return s
}

func (s Selection) NextImageSize() Selection {
	s.ImageSize = cycle(imageSizes, s.ImageSize)
	return s
}

func cycle(options []string, current string) string {
	// an unknown value sits at -1, so the next one is the first option
	return options[(indexOf(options, current)+1)%len(options)]
}

func indexOf(options []string, value string) int {
	for i, o := range options {
		if o == value {
			return i
		}
	}
	return -1
}
