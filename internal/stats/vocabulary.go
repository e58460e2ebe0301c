package stats

// Item is one entry of the inspection checklist vocabulary.
type Item struct {
	Key   string
	Label string
}

// InspectionItems is the fixed checklist vocabulary of the inspection form,
// in the order reports present it.
var InspectionItems = []Item{
	{Key: "brakes", Label: "Brakes"},
	{Key: "lights", Label: "Lights"},
	{Key: "tires", Label: "Tires"},
	{Key: "horn", Label: "Horn"},
	{Key: "mirrors", Label: "Mirrors"},
	{Key: "steering", Label: "Steering"},
	{Key: "seatbelt", Label: "Seatbelt"},
	{Key: "wipers", Label: "Wipers"},
	{Key: "fluidLevels", Label: "Fluid Levels"},
	{Key: "hydraulics", Label: "Hydraulics"},
	{Key: "forks", Label: "Forks"},
	{Key: "chains", Label: "Chains"},
	{Key: "battery", Label: "Battery"},
	{Key: "backupAlarm", Label: "Backup Alarm"},
	{Key: "fireExtinguisher", Label: "Fire Extinguisher"},
}

var itemLabels = func() map[string]string {
	m := make(map[string]string, len(InspectionItems))
	for _, it := range InspectionItems {
		m[it.Key] = it.Label
	}
	return m
}()

// IsKnownItem reports whether key belongs to the inspection vocabulary.
func IsKnownItem(key string) bool {
	_, ok := itemLabels[key]
	return ok
}

// Label returns the display label for a checklist key. Keys outside the
// vocabulary are returned unchanged.
func Label(key string) string {
	if l, ok := itemLabels[key]; ok {
		return l
	}
	return key
}
