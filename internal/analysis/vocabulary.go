package analysis

type themeCategory struct {
	name     string
	keywords []string
}

// themeCategories is ordered; on equal priority the earlier theme wins.
var themeCategories = []themeCategory{
	{"batmobile", []string{"batmobile", "bat mobile", "batman car"}},
	{"race_car", []string{"race car", "racing car", "formula", "f1", "nascar", "speed"}},
	{"sports_car", []string{"sports car", "supercar", "ferrari", "lamborghini", "porsche"}},
	{"regular_car", []string{"car", "automobile", "vehicle", "sedan", "coupe"}},
	{"truck", []string{"truck", "pickup", "lorry"}},
	{"bus", []string{"bus", "coach"}},
	{"motorcycle", []string{"motorcycle", "bike", "motorbike"}},
	{"train", []string{"train", "locomotive", "railway", "railroad"}},
	{"fighter_jet", []string{"fighter", "jet", "f-16", "f-22"}},
	{"airplane", []string{"plane", "aircraft", "airplane", "airliner"}},
	{"helicopter", []string{"helicopter", "chopper"}},
	{"spaceship", []string{"spaceship", "spacecraft", "rocket", "shuttle"}},
	{"house", []string{"house", "home", "residence"}},
	{"castle", []string{"castle", "fortress", "palace"}},
	{"building", []string{"building", "tower", "skyscraper"}},
	{"robot", []string{"robot", "android", "cyborg"}},
	{"ship", []string{"ship", "boat", "yacht", "cruise"}},
	{"tank", []string{"tank", "armored"}},
}

var colorWords = []string{
	"red", "blue", "green", "yellow", "black", "white", "gray", "grey",
	"orange", "purple", "pink", "brown", "tan", "lime", "cyan", "magenta",
}

var constraintWords = []string{
	"small", "large", "big", "tiny", "mini", "micro", "huge",
	"simple", "complex", "detailed", "basic", "advanced",
}

// sizeWords is the subset of constraints that never identifies a subject.
var sizeWords = map[string]struct{}{
	"small": {}, "large": {}, "big": {}, "tiny": {}, "mini": {}, "micro": {}, "huge": {},
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "lego": {},
}

var actionWords = map[string]struct{}{
	"build": {}, "make": {}, "create": {},
}

var complexityTriggers = []string{
	"futuristic", "steampunk", "cyberpunk", "medieval", "ancient", "modern", "vintage",
	"flying", "hovering", "levitating", "transforming", "modular", "custom",
	"battle", "war", "combat", "military", "space", "alien", "fantasy", "sci-fi",
}

type conceptMapping struct {
	concept string
	related []string
}

var conceptMappings = []conceptMapping{
	{"futuristic", []string{"space", "sci-fi", "cyber", "neon", "tech"}},
	{"steampunk", []string{"vintage", "brass", "gear", "steam", "industrial"}},
	{"cyberpunk", []string{"neon", "tech", "cyber", "digital", "matrix"}},
	{"flying", []string{"aircraft", "plane", "helicopter", "jet", "wing"}},
	{"hovering", []string{"hover", "levitate", "float", "air cushion"}},
	{"transforming", []string{"transform", "convert", "change", "modular"}},
	{"medieval", []string{"castle", "knight", "dragon", "fortress", "ancient"}},
	{"modern", []string{"contemporary", "sleek", "minimalist", "tech"}},
	{"vintage", []string{"classic", "retro", "old", "traditional"}},
	{"battle", []string{"war", "combat", "military", "tank", "fighter"}},
	{"space", []string{"astronaut", "rocket", "shuttle", "alien", "planet"}},
	{"fantasy", []string{"magic", "dragon", "wizard", "mythical", "enchanted"}},
}
