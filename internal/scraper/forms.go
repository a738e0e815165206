package scraper

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// formField is one name/value pair of a submitted form
type formField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// formFields flattens data into form fields sorted by name. Scalars are
// rendered as strings, anything else as JSON.
func formFields(data map[string]any) ([]formField, error) {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]formField, 0, len(names))
	for _, name := range names {
		v, err := cast.ToStringE(data[name])
		if err != nil {
			b, jerr := json.Marshal(data[name])
			if jerr != nil {
				return nil, fmt.Errorf("form field %q: %w", name, jerr)
			}
			v = string(b)
		}
		fields = append(fields, formField{Name: name, Value: v})
	}
	return fields, nil
}

const postTemplate = `(function(action, fields) {
	var form = document.createElement('form');
	form.method = 'POST';
	form.action = action;
	form.style.display = 'none';
	fields.forEach(function(f) {
		var input = document.createElement('input');
		input.type = 'hidden';
		input.name = f.name;
		input.value = f.value;
		form.appendChild(input);
	});
	(document.body || document.documentElement).appendChild(form);
	form.submit();
	return true;
})(%s, %s)`

// postScript builds the script submitting fields to action
func postScript(action string, fields []formField) (string, error) {
	a, err := json.Marshal(action)
	if err != nil {
		return "", err
	}
	f, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(postTemplate, a, f), nil
}

const fillTemplate = `(function(sel, values, submit) {
	var form = document.querySelector(sel);
	if (!form) {
		throw new Error('no form matching ' + sel);
	}
	Object.keys(values).forEach(function(name) {
		var fields = form.querySelectorAll('[name="' + CSS.escape(name) + '"]');
		if (!fields.length) {
			throw new Error('no field matching ' + name + ' in ' + sel);
		}
		var value = values[name];
		fields.forEach(function(field) {
			if (field.type === 'checkbox' || field.type === 'radio') {
				field.checked = Array.isArray(value) ? value.indexOf(field.value) >= 0 : (value === true || field.value === String(value));
			} else if (field.tagName === 'SELECT' && field.multiple && Array.isArray(value)) {
				Array.prototype.forEach.call(field.options, function(o) { o.selected = value.indexOf(o.value) >= 0; });
			} else {
				field.value = value;
			}
			field.dispatchEvent(new Event('input', {bubbles: true}));
			field.dispatchEvent(new Event('change', {bubbles: true}));
		});
	});
	if (submit) {
		form.submit();
	}
	return true;
})(%s, %s, %t)`

// fillScript builds the script filling the form matching sel
func fillScript(sel string, values map[string]any, submit bool) (string, error) {
	s, err := json.Marshal(sel)
	if err != nil {
		return "", err
	}
	if values == nil {
		values = map[string]any{}
	}
	v, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding form values: %w", err)
	}
	return fmt.Sprintf(fillTemplate, s, v, submit), nil
}
