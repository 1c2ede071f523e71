package assignment

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/codeedu/lms/core"
)

var (
	githubLinkTag  = "githublink"
	githubLinkText = "invalid GitHub link format: it should start with https://github.com and include the username " +
		"and repository name (e.g. https://github.com/username/repository or with .git)"
	githubLinkRegex = regexp.MustCompile(`(?i)^https?://(www\.)?github\.com/[\w-]+/[\w-]+(/|\.git)?$`)
)

// InitValidators registers the assignment validations. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(githubLinkTag, githubLinkValidation)
	core.RegisterCustomTranslation(validate, translator, githubLinkTag, githubLinkText)
}

// IsGithubRepoLink reports whether link points to a GitHub repository.
func IsGithubRepoLink(link string) bool {
	return githubLinkRegex.MatchString(link)
}

func githubLinkValidation(fl validator.FieldLevel) bool {
	return IsGithubRepoLink(fl.Field().String())
}
