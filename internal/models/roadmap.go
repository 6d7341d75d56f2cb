package models

import "time"

// GeneratedDateLayout formats RoadmapRecord.GeneratedDate.
const GeneratedDateLayout = "2006-01-02 15:04:05"

// CareerTrack is one suggested career path.
type CareerTrack struct {
	CareerTitle      string   `json:"career_title" bson:"career_title"`
	ExistingSkills   []string `json:"existing_skills" bson:"existing_skills"`
	SequencedRoadmap []string `json:"sequenced_roadmap" bson:"sequenced_roadmap"`
}

// RoadmapRecord is the current roadmap for a student. A new generation
// replaces the previous one.
type RoadmapRecord struct {
	StudentID         string        `json:"student_id" bson:"student_id"`
	GeneratedDate     string        `json:"generated_date" bson:"generated_date"`
	PotentialRoadmaps []CareerTrack `json:"potential_roadmaps" bson:"potential_roadmaps"`
}

// NewRoadmapRecord stamps tracks with the generation time.
func NewRoadmapRecord(studentID string, at time.Time, tracks []CareerTrack) *RoadmapRecord {
	return &RoadmapRecord{
		StudentID:         studentID,
		GeneratedDate:     at.Format(GeneratedDateLayout),
		PotentialRoadmaps: tracks,
	}
}
