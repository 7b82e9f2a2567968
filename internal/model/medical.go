package model

import "time"

// Condition はユーザーの持病（慢性疾患）を表す。
type Condition struct {
	ID        string
	UserID    string
	Name      string
	StartDate time.Time
	Notes     string
	CreatedAt time.Time
}

// Medication はユーザーが服用中の薬を表す。
type Medication struct {
	ID        string
	UserID    string
	Name      string
	Dosage    string
	Frequency string
	StartDate time.Time
	CreatedAt time.Time
}

// Surgery はユーザーの手術歴を表す。
type Surgery struct {
	ID        string
	UserID    string
	Name      string
	Date      time.Time
	Notes     string
	CreatedAt time.Time
}

// MedicalContext は症状分析のたびに組み立てる病歴の集約ビュー。
// 永続化もキャッシュもしない。
type MedicalContext struct {
	Conditions  []Condition
	Medications []Medication
	Surgeries   []Surgery
	// Age は年齢。生年月日が未登録の場合はnil（不明）。
	Age *int
}

// AgeKnown は年齢が判明しているかを返す。
func (c *MedicalContext) AgeKnown() bool {
	return c.Age != nil
}
