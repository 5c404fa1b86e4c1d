package report

import "digiprofile/api/internal/catalog"

// phrases holds the fixed page text per language.
var phrases = map[catalog.Lang]map[string]string{
	catalog.LangEnglish: {
		"reports":      "Ward statistics",
		"total":        "Total",
		"wards":        "Wards reporting",
		"leading":      "Largest category",
		"share":        "Share",
		"ward":         "Ward",
		"category":     "Category",
		"value":        "Count",
		"percent":      "% of ward",
		"subtotal":     "Ward total",
		"distribution": "Distribution",
		"other":        "Other",
		"empty":        "No data has been entered for this dataset yet.",
		"error":        "The statistics could not be loaded. Please try again later.",
		"download":     "Download",
		"records":      "records",
		"households":   "Households",
		"population":   "Population",
		"economics":    "Economics",
		"health":       "Health",
		"physical":     "Physical infrastructure",
		"agriculture":  "Agriculture",
	},
	catalog.LangNepali: {
		"reports":      "वडागत तथ्याङ्क",
		"total":        "जम्मा",
		"wards":        "विवरण भएका वडा",
		"leading":      "सबैभन्दा ठूलो वर्ग",
		"share":        "हिस्सा",
		"ward":         "वडा",
		"category":     "वर्ग",
		"value":        "संख्या",
		"percent":      "वडाको %",
		"subtotal":     "वडा जम्मा",
		"distribution": "वितरण",
		"other":        "अन्य",
		"empty":        "यस विवरणमा अहिलेसम्म कुनै तथ्याङ्क प्रविष्ट गरिएको छैन।",
		"error":        "तथ्याङ्क लोड गर्न सकिएन। कृपया पछि प्रयास गर्नुहोस्।",
		"download":     "डाउनलोड",
		"records":      "अभिलेख",
		"households":   "घरपरिवार",
		"population":   "जनसंख्या",
		"economics":    "आर्थिक",
		"health":       "स्वास्थ्य",
		"physical":     "भौतिक पूर्वाधार",
		"agriculture":  "कृषि",
	},
}

func phrase(lang catalog.Lang, key string) string {
	if text, ok := phrases[lang][key]; ok {
		return text
	}
	if text, ok := phrases[catalog.LangEnglish][key]; ok {
		return text
	}
	return key
}
