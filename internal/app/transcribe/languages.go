package transcribe

const DefaultSpeechLanguage = "en-US"

// speechLanguages maps challenge widget locales to recognition service codes.
var speechLanguages = map[string]string{
	"ar":     "ar-SA",
	"af":     "af-ZA",
	"am":     "am-ET",
	"hy":     "hy-AM",
	"az":     "az-AZ",
	"eu":     "eu-ES",
	"bn":     "bn-BD",
	"bg":     "bg-BG",
	"ca":     "ca-ES",
	"zh-HK":  "yue-Hant-HK",
	"zh-CN":  "cmn-Hans-CN",
	"zh-TW":  "cmn-Hant-TW",
	"hr":     "hr-HR",
	"cs":     "cs-CZ",
	"da":     "da-DK",
	"nl":     "nl-NL",
	"en-GB":  "en-GB",
	"en":     "en-US",
	"et":     "et-EE",
	"fil":    "fil-PH",
	"fi":     "fi-FI",
	"fr":     "fr-FR",
	"fr-CA":  "fr-CA",
	"gl":     "gl-ES",
	"ka":     "ka-GE",
	"de":     "de-DE",
	"de-AT":  "de-DE",
	"de-CH":  "de-DE",
	"el":     "el-GR",
	"gu":     "gu-IN",
	"iw":     "he-IL",
	"hi":     "hi-IN",
	"hu":     "hu-HU",
	"is":     "is-IS",
	"id":     "id-ID",
	"it":     "it-IT",
	"ja":     "ja-JP",
	"kn":     "kn-IN",
	"ko":     "ko-KR",
	"lo":     "lo-LA",
	"lv":     "lv-LV",
	"lt":     "lt-LT",
	"ms":     "ms-MY",
	"ml":     "ml-IN",
	"mr":     "mr-IN",
	"mn":     "mn-MN",
	"no":     "nb-NO",
	"fa":     "fa-IR",
	"pl":     "pl-PL",
	"pt":     "pt-PT",
	"pt-BR":  "pt-BR",
	"pt-PT":  "pt-PT",
	"ro":     "ro-RO",
	"ru":     "ru-RU",
	"sr":     "sr-RS",
	"si":     "si-LK",
	"sk":     "sk-SK",
	"sl":     "sl-SI",
	"es":     "es-ES",
	"es-419": "es-MX",
	"sw":     "sw-TZ",
	"sv":     "sv-SE",
	"ta":     "ta-IN",
	"te":     "te-IN",
	"th":     "th-TH",
	"tr":     "tr-TR",
	"uk":     "uk-UA",
	"ur":     "ur-PK",
	"vi":     "vi-VN",
	"zu":     "zu-ZA",
}

// SpeechLanguage resolves a challenge locale, defaulting to en-US.
func SpeechLanguage(lang string) string {
	if code, ok := speechLanguages[lang]; ok {
		return code
	}
	return DefaultSpeechLanguage
}

func isEnglish(code string) bool {
	return code == "en-US" || code == "en-GB"
}
