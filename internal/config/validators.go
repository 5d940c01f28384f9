package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"xray-profile/internal/xray"
)

var alphanumDash = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ScheduleParser accepts five or six field cron expressions and descriptors.
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func init() {
	validate = validator.New()

	validators := map[string]validator.Func{
		"dir":           validateDir,
		"policy":        validatePolicy,
		"alphanum_dash": validateAlphanumDash,
		"cronspec":      validateCronSpec,
	}
	for tag, fn := range validators {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register %s validator: %v", tag, err))
		}
	}
}

func validateDir(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if info, err := os.Stat(path); err != nil {
		return false
	} else {
		return info.IsDir()
	}
}

func validatePolicy(fl validator.FieldLevel) bool {
	_, ok := xray.ParsePolicy(fl.Field().String())
	return ok
}

// Dataset and subscription names end up in file names and outbound tags.
func validateAlphanumDash(fl validator.FieldLevel) bool {
	return alphanumDash.MatchString(fl.Field().String())
}

func validateCronSpec(fl validator.FieldLevel) bool {
	_, err := ScheduleParser.Parse(fl.Field().String())
	return err == nil
}
