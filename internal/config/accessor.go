package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dotted JSON path such as
// "moderation.languages" or "platforms.discord.muteRole". Slice elements are
// addressed by index ("moderation.languages.0").
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath parses value according to the type of the field at path and
// stores it. Strings are stored verbatim, so numeric IDs stay strings. String
// lists take a comma separated list or a JSON array.
func SetByPath(cfg *Config, path, value string) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}
	if !v.CanSet() {
		return fmt.Errorf("%s is not settable", path)
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", path, value)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", path, value)
		}
		v.SetInt(n)
	case reflect.Float64, reflect.Float32:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", path, value)
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%s: unsupported list type %s", path, v.Type())
		}
		if strings.HasPrefix(strings.TrimSpace(value), "[") {
			if err := json.Unmarshal([]byte(value), v.Addr().Interface()); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		}
		items := reflect.MakeSlice(v.Type(), 0, 0)
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = reflect.Append(items, reflect.ValueOf(s).Convert(v.Type().Elem()))
			}
		}
		v.Set(items)
	default:
		return fmt.Errorf("%s: cannot set a %s", path, v.Kind())
	}
	return nil
}

// lookup walks path through the config structs by JSON field name.
func lookup(cfg *Config, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("empty path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		switch v.Kind() {
		case reflect.Struct:
			f, ok := fieldByTag(v, key)
			if !ok {
				return reflect.Value{}, fmt.Errorf("key not found: %s", path)
			}
			v = f
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= v.Len() {
				return reflect.Value{}, fmt.Errorf("invalid array index: %s", key)
			}
			v = v.Index(idx)
		default:
			return reflect.Value{}, fmt.Errorf("cannot traverse into %s at %s", v.Type(), key)
		}
	}
	return v, nil
}

// fieldByTag finds the field with JSON name name, looking through embedded
// structs the way encoding/json flattens them.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if got, ok := fieldByTag(v.Field(i), name); ok {
				return got, true
			}
			continue
		}
		if jsonName(f) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Moderation.Languages = append([]string(nil), cfg.Moderation.Languages...)
	c.Platforms.Telegram.AllowFrom = append(FlexStringList(nil), cfg.Platforms.Telegram.AllowFrom...)
	c.Platforms.Twitch.Channels = append(FlexStringList(nil), cfg.Platforms.Twitch.Channels...)

	for _, secret := range []*string{
		&c.Oracle.APIKey,
		&c.Platforms.Discord.Token,
		&c.Platforms.Telegram.Token,
		&c.Platforms.Slack.BotToken,
		&c.Platforms.Slack.AppToken,
		&c.Platforms.Twitch.Token,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	return &c
}

// maskString keeps the first and last four characters of long secrets.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path with its current value, including
// fields that are empty.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	flatten("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

func flatten(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			flatten(prefix, v.Field(i), out)
			continue
		}
		path := jsonName(f)
		if prefix != "" {
			path = prefix + "." + path
		}
		if f.Type.Kind() == reflect.Struct {
			flatten(path, v.Field(i), out)
			continue
		}
		out[path] = v.Field(i).Interface()
	}
}
