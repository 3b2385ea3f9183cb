package project

import "regexp"

var (
	iosPattern     = regexp.MustCompile(`(?i)\b(ios|iphone|ipad|swift|swiftui|app store)\b`)
	androidPattern = regexp.MustCompile(`(?i)\b(android|kotlin|jetpack compose|play store)\b`)
	mobilePattern  = regexp.MustCompile(`(?i)\b(mobile|cross[- ]platform|react native|flutter|smartphone)\b`)
	webPattern     = regexp.MustCompile(`(?i)\b(web|website|webapp|web app|browser|dashboard|frontend|front[- ]end|spa|saas|portal)\b`)
)

// DetectPlatforms derives platform flags from the objective's keywords.
// When no keyword matches, the model's flags are used if any is set;
// otherwise the project defaults to web only.
func DetectPlatforms(objective string, fromModel *PlatformRequirements) PlatformRequirements {
	var p PlatformRequirements
	matched := false

	if mobilePattern.MatchString(objective) {
		p.IOS, p.Android = true, true
		matched = true
	}
	if iosPattern.MatchString(objective) {
		p.IOS = true
		matched = true
	}
	if androidPattern.MatchString(objective) {
		p.Android = true
		matched = true
	}
	if webPattern.MatchString(objective) {
		p.Web = true
		matched = true
	}

	if matched {
		return p
	}
	if fromModel != nil && (fromModel.Web || fromModel.IOS || fromModel.Android) {
		return *fromModel
	}
	return PlatformRequirements{Web: true}
}
