package schema

func float(v float64) *float64 { return &v }

// InjuryRisk is the crash-attribute schema the pedestrian-injury pipeline is
// fitted on. Column names match the training frame.
func InjuryRisk() Schema {
	return Schema{Features: []Feature{
		{
			Name: "cf1_clean",
			Kind: KindCategorical,
			Levels: []string{
				"Driver Inattention/Distraction",
				"Failure to Yield Right-of-Way",
				"Following Too Closely",
				"Unsafe Speed",
				"Driver Inexperience",
				"Turning Improperly",
				"Alcohol Involvement",
				"Fell Asleep",
				"Traffic Control Disregarded",
				"Aggressive Driving/Road Rage",
				"Other",
			},
			Other: "Other",
		},
		{Name: "hour", Kind: KindInteger, Min: float(0), Max: float(23)},
		{
			Name:   "veh_group",
			Kind:   KindCategorical,
			Levels: []string{"Sedan", "SUV", "Truck", "Bus", "Motorcycle", "Van", "Taxi", "Bike", "Other"},
			Other:  "Other",
		},
		{
			Name:   "BoroName",
			Kind:   KindCategorical,
			Levels: []string{"Brooklyn", "Queens", "Manhattan", "Bronx", "Staten Island"},
		},
	}}
}

// Species is the two-measurement schema of the species classifier.
func Species() Schema {
	return Schema{Features: []Feature{
		{Name: "bill_length_mm", Kind: KindNumeric},
		{Name: "flipper_length_mm", Kind: KindNumeric},
	}}
}
