package cloudformation

import (
	"fmt"
	"time"
)

// WebBucketTemplate creates a public S3 bucket configured for website hosting.
// The bucket is retained when the stack is deleted.
const WebBucketTemplate = `{"AWSTemplateFormatVersion":"2010-09-09","Description":"S3 bucket configured for website access, retained on stack deletion.","Resources":{"S3Bucket":{"Type":"AWS::S3::Bucket","Properties":{"AccessControl":"PublicRead","WebsiteConfiguration":{"IndexDocument":"index.html","ErrorDocument":"error.html"}},"DeletionPolicy":"Retain"}},"Outputs":{"WebsiteURL":{"Value":{"Fn::GetAtt":["S3Bucket","WebsiteURL"]},"Description":"URL for website hosted on S3"},"S3BucketSecureURL":{"Value":{"Fn::Join":["",["https://",{"Fn::GetAtt":["S3Bucket","DomainName"]}]]},"Description":"Name of S3 bucket to hold website content"}}}`

// GenerateStackName returns a unique stack name for an unnamed web bucket.
func GenerateStackName(now time.Time) string {
	return fmt.Sprintf("webbucket%d", now.UnixNano())
}
