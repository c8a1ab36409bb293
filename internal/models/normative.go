package models

// MeanSD is one normative reference distribution.
type MeanSD struct {
	Mean float64 `yaml:"mean" json:"mean"`
	SD   float64 `yaml:"sd" json:"sd"`
}

// NormativeStats is the reference row for one age range and gender.
type NormativeStats struct {
	AgeRange     string `yaml:"age_range" json:"ageRange"`
	Gender       string `yaml:"gender" json:"gender"`
	ResponseTime MeanSD `yaml:"response_time" json:"responseTime"`
	DPrime       MeanSD `yaml:"d_prime" json:"dPrime"`
	Variability  MeanSD `yaml:"variability" json:"variability"`
}
