package main

import (
	"context"
	"fmt"

	"github.com/codeedu/lms/core/group"
)

func (cli *commandLine) addGroup(course, groupNo string) error {
	grp, err := cli.grpSvc.Create(context.Background(), group.NewGroup{Course: course, GroupNo: groupNo})
	if err != nil {
		return err
	}
	fmt.Printf("group %s/%s created: %s\n", grp.Course, grp.GroupNo, grp.ID)
	return nil
}
