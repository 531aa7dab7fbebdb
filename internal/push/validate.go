package push

import "regexp"

// InterestNamePattern is the accepted shape of an interest name.
const InterestNamePattern = `^[A-Za-z0-9_\-=@,.;]{1,164}$`

var interestNameRegexp = regexp.MustCompile(InterestNamePattern)

// ValidateInterest returns *InvalidInterestError if name is not a valid interest.
func ValidateInterest(name string) error {
	if !interestNameRegexp.MatchString(name) {
		return &InvalidInterestError{Name: name}
	}
	return nil
}

// ValidateInterests returns *MultipleInvalidInterestsError listing every invalid name.
func ValidateInterests(names []string) error {
	var invalid []string
	for _, name := range names {
		if !interestNameRegexp.MatchString(name) {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return &MultipleInvalidInterestsError{Names: invalid}
	}
	return nil
}
