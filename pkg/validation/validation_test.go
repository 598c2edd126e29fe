package validation

import "testing"

func TestValidatePhone(t *testing.T) {
	valid := []string{"4912345678", "+4912345678", " 628123456789 "}
	for _, phone := range valid {
		if err := ValidatePhone(phone); err != nil {
			t.Errorf("ValidatePhone(%q) = %v, want nil", phone, err)
		}
	}

	invalid := []string{"", "0812345678", "abc123", "12345", "+0123456"}
	for _, phone := range invalid {
		if err := ValidatePhone(phone); err == nil {
			t.Errorf("ValidatePhone(%q) = nil, want error", phone)
		}
	}
}

func TestValidateChatID(t *testing.T) {
	if err := ValidateChatID("123456789@g.us"); err != nil {
		t.Fatalf("full JID rejected: %v", err)
	}
	if err := ValidateChatID("4912345678"); err != nil {
		t.Fatalf("bare number rejected: %v", err)
	}
	if err := ValidateChatID(""); err == nil {
		t.Fatal("empty chat id accepted")
	}
	if err := ValidateChatID("0812345678"); err == nil {
		t.Fatal("leading-zero number accepted")
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://example.com/hook"); err != nil {
		t.Fatalf("valid url rejected: %v", err)
	}
	if err := ValidateURL(""); err == nil {
		t.Fatal("empty url accepted")
	}
	if err := ValidateURL("not a url"); err == nil {
		t.Fatal("garbage url accepted")
	}
}
